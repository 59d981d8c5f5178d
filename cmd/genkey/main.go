// genkey prints a new random ENCRYPTION_KEY.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/pacifica-bot/internal/vault"
)

func main() {
	key, err := vault.GenerateMasterKey()
	if err != nil {
		slog.Error("Failed to generate key", "error", err)
		os.Exit(1)
	}
	fmt.Println(key.Hex())
}
