package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amerfu/aigw/cmd/aigw/commands"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aigw",
		Short: "AI Gateway management CLI",
		Long: `Operator tooling for the AI gateway: inspect and adjust team
budgets, provision API keys, mint admin tokens, and tail the audit
trail.`,
	}

	opts := commands.NewGlobalOptions(rootCmd)

	rootCmd.AddCommand(commands.NewBudgetCommand(opts))
	rootCmd.AddCommand(commands.NewKeyCommand())
	rootCmd.AddCommand(commands.NewTokenCommand())
	rootCmd.AddCommand(commands.NewAuditCommand(opts))

	return rootCmd
}
