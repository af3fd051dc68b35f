package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/outlook-mcp/internal/auth"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a token encryption key",
		Long: `Generate a random 256-bit AES key and print it base64 encoded, ready
for the TOKEN_ENCRYPTION_KEY environment variable.

Rotating the key invalidates every stored credential; users have to
reconnect their accounts afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			fmt.Println(auth.KeyToBase64(key))
			return nil
		},
	}
}
