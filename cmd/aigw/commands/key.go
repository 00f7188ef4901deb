package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

// NewKeyCommand creates the API key command group. Keys are static
// config-provisioned credentials, so generation happens locally and
// the operator adds the result to auth.team_keys.
func NewKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage team API keys",
	}

	cmd.AddCommand(newKeyGenerateCommand())

	return cmd
}

func newKeyGenerateCommand() *cobra.Command {
	var team string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new team API key",
		Long: `Generate a new API key for a team. The key only becomes valid
once it is added to the gateway's auth.team_keys configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if team == "" {
				return fmt.Errorf("--team is required")
			}

			suffix := make([]byte, 8)
			if _, err := rand.Read(suffix); err != nil {
				return fmt.Errorf("failed to generate key material: %w", err)
			}
			key := fmt.Sprintf("sk-gateway-%s-%s", team, hex.EncodeToString(suffix))

			fmt.Println(key)
			fmt.Printf("\nAdd to the gateway configuration:\n\n")
			fmt.Printf("auth:\n  team_keys:\n    %s: %s\n", key, team)
			return nil
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "team the key belongs to")

	return cmd
}
