package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amerfu/aigw/internal/models"
)

// NewBudgetCommand creates the budget management command group.
func NewBudgetCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage team budgets",
		Long:  "View spend and adjust daily/monthly limits for teams",
	}

	cmd.AddCommand(newBudgetStatusCommand(opts))
	cmd.AddCommand(newBudgetSetCommand(opts))

	return cmd
}

func newBudgetStatusCommand(opts *GlobalOptions) *cobra.Command {
	var teamID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget status",
		Long:  "Show the current window usage for all teams, or one team",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Budgets []models.TeamBudget `json:"budgets"`
			}
			if err := opts.call("GET", "/v1/budget/all", nil, &resp); err != nil {
				return err
			}

			budgets := resp.Budgets
			if teamID != "" {
				budgets = nil
				for _, b := range resp.Budgets {
					if b.TeamID == teamID {
						budgets = append(budgets, b)
					}
				}
				if len(budgets) == 0 {
					return fmt.Errorf("team %q not found", teamID)
				}
			}

			if opts.JSON {
				return printJSON(budgets)
			}
			for _, b := range budgets {
				fmt.Printf("%s\n", b.TeamID)
				fmt.Printf("  daily:   $%.4f / $%.2f (%d requests)\n", b.DailyUsedUSD, b.DailyLimitUSD, b.RequestCountToday)
				fmt.Printf("  monthly: $%.4f / $%.2f (%d requests)\n", b.MonthlyUsedUSD, b.MonthlyLimitUSD, b.RequestCountMonth)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&teamID, "team", "", "show a single team")

	return cmd
}

func newBudgetSetCommand(opts *GlobalOptions) *cobra.Command {
	var teamID string
	var daily, monthly float64

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set budget limits",
		Long:  "Override the daily and/or monthly limit for a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			if teamID == "" {
				return fmt.Errorf("--team is required")
			}

			body := map[string]interface{}{"team_id": teamID}
			if cmd.Flags().Changed("daily") {
				body["daily_limit_usd"] = daily
			}
			if cmd.Flags().Changed("monthly") {
				body["monthly_limit_usd"] = monthly
			}
			if len(body) == 1 {
				return fmt.Errorf("at least one of --daily or --monthly is required")
			}

			var b models.TeamBudget
			if err := opts.call("POST", "/v1/budget/limits", body, &b); err != nil {
				return err
			}

			if opts.JSON {
				return printJSON(b)
			}
			fmt.Printf("Updated %s: daily $%.2f, monthly $%.2f\n", b.TeamID, b.DailyLimitUSD, b.MonthlyLimitUSD)
			return nil
		},
	}

	cmd.Flags().StringVar(&teamID, "team", "", "team to update")
	cmd.Flags().Float64Var(&daily, "daily", 0, "daily limit in USD")
	cmd.Flags().Float64Var(&monthly, "monthly", 0, "monthly limit in USD")

	return cmd
}
