package vault

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ashureev/pacifica-bot/internal/domain"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testKey(t *testing.T) MasterKey {
	t.Helper()
	key, err := ParseMasterKey(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	blob, err := Encrypt([]byte("examplesecret12345"), key)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, err := Decrypt(blob, key)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(got) != "examplesecret12345" {
		t.Errorf("Expected examplesecret12345, got %q", got)
	}
}

func TestEncryptDecryptVariousLengths(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	for _, n := range []int{0, 1, 15, 16, 17, 64, 88, 1024} {
		in := bytes.Repeat([]byte{byte(n)}, n)
		blob, err := Encrypt(in, key)
		if err != nil {
			t.Fatalf("len %d: unexpected err: %v", n, err)
		}
		out, err := Decrypt(blob, key)
		if err != nil {
			t.Fatalf("len %d: unexpected err: %v", n, err)
		}
		if !bytes.Equal(in, out) {
			t.Errorf("len %d: round trip mismatch", n)
		}
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		blob, err := Encrypt([]byte("same"), key)
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if len(blob.IV) != IVSize*2 {
			t.Fatalf("Expected %d hex chars of IV, got %d", IVSize*2, len(blob.IV))
		}
		if seen[blob.IV] {
			t.Fatalf("IV reused: %s", blob.IV)
		}
		seen[blob.IV] = true
	}
}

func flipBit(t *testing.T, field string, bit int) string {
	t.Helper()
	raw, err := hex.DecodeString(field)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[bit/8] ^= 1 << (bit % 8)
	return hex.EncodeToString(raw)
}

func TestDecryptDetectsTampering(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	blob, err := Encrypt([]byte("examplesecret12345"), key)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	for bit := 0; bit < len(blob.Ciphertext)*4; bit++ {
		tampered := blob
		tampered.Ciphertext = flipBit(t, blob.Ciphertext, bit)
		out, err := Decrypt(tampered, key)
		if !errors.Is(err, ErrAuthenticationFailure) {
			t.Fatalf("ciphertext bit %d: expected ErrAuthenticationFailure, got %v", bit, err)
		}
		if out != nil {
			t.Fatalf("ciphertext bit %d: plaintext released", bit)
		}
	}

	for bit := 0; bit < TagSize*8; bit++ {
		tampered := blob
		tampered.AuthTag = flipBit(t, blob.AuthTag, bit)
		if _, err := Decrypt(tampered, key); !errors.Is(err, ErrAuthenticationFailure) {
			t.Fatalf("tag bit %d: expected ErrAuthenticationFailure, got %v", bit, err)
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	blob, err := Encrypt([]byte("examplesecret12345"), key)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	other := key
	other[0] ^= 0xff
	if _, err := Decrypt(blob, other); !errors.Is(err, ErrAuthenticationFailure) {
		t.Errorf("Expected ErrAuthenticationFailure, got %v", err)
	}
}

func TestDecryptMalformedBlob(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	cases := []domain.EncryptedSecret{
		{Ciphertext: "zz", IV: strings.Repeat("00", IVSize), AuthTag: strings.Repeat("00", TagSize)},
		{Ciphertext: "00", IV: "00", AuthTag: strings.Repeat("00", TagSize)},
		{Ciphertext: "00", IV: strings.Repeat("00", IVSize), AuthTag: "00"},
	}
	for i, c := range cases {
		if _, err := Decrypt(c, key); !errors.Is(err, ErrAuthenticationFailure) {
			t.Errorf("case %d: expected ErrAuthenticationFailure, got %v", i, err)
		}
	}
}

func TestParseMasterKey(t *testing.T) {
	t.Parallel()

	bad := []string{"", "abcd", strings.Repeat("g", 64), strings.Repeat("a", 63), strings.Repeat("a", 65), " " + testKeyHex, testKeyHex + "\n"}
	for _, s := range bad {
		if _, err := ParseMasterKey(s); !errors.Is(err, ErrInvalidMasterKey) {
			t.Errorf("ParseMasterKey(%q): expected ErrInvalidMasterKey, got %v", s, err)
		}
	}

	key, err := ParseMasterKey(strings.ToUpper(testKeyHex))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if key[31] != 0x1f {
		t.Errorf("Expected last byte 0x1f, got %#x", key[31])
	}
	if s := fmt.Sprint(key); strings.Contains(s, "1f") {
		t.Errorf("Expected redacted key, got %s", s)
	}
}

func TestGenerateMasterKey(t *testing.T) {
	t.Parallel()

	a, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Error("Expected distinct keys")
	}
	if len(a.Hex()) != KeySize*2 {
		t.Errorf("Expected %d hex characters, got %d", KeySize*2, len(a.Hex()))
	}
	parsed, err := ParseMasterKey(a.Hex())
	if err != nil || parsed != a {
		t.Errorf("Expected hex form to parse back, got %v", err)
	}
	if a.String() != "[REDACTED]" {
		t.Errorf("Expected redacted String, got %s", a.String())
	}
}
