package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

// NewTokenCommand creates the admin token command group. Tokens are
// minted locally with the gateway's signing secret, so this command
// works without a running gateway.
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage admin tokens",
	}

	cmd.AddCommand(newTokenMintCommand())

	return cmd
}

func newTokenMintCommand() *cobra.Command {
	var subject, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an admin JWT",
		Long: `Mint a short-lived admin JWT for the budget and audit endpoints.
The secret must match the gateway's auth.secret_key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AIGW_SECRET_KEY")
			}
			if secret == "" {
				return fmt.Errorf("no signing secret: pass --secret or set AIGW_SECRET_KEY")
			}

			now := time.Now().UTC()
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub":  subject,
				"role": "admin",
				"iat":  now.Unix(),
				"exp":  now.Add(ttl).Unix(),
			})

			signed, err := token.SignedString([]byte(secret))
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Println(signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to AIGW_SECRET_KEY)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
