package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amerfu/aigw/internal/models"
)

// NewAuditCommand creates the audit trail command group.
func NewAuditCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}

	cmd.AddCommand(newAuditTailCommand(opts))

	return cmd
}

func newAuditTailCommand(opts *GlobalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit entries",
		Long:  "Show the most recent audit entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Entries []models.AuditEntry `json:"entries"`
			}
			path := fmt.Sprintf("/v1/audit/recent?limit=%d", limit)
			if err := opts.call("GET", path, nil, &resp); err != nil {
				return err
			}

			if opts.JSON {
				return printJSON(resp.Entries)
			}
			for _, e := range resp.Entries {
				line := fmt.Sprintf("%s %s team=%s provider=%s status=%s cost=$%.4f",
					e.Timestamp, e.RequestID, e.TeamID, e.ProviderUsed, e.Status, e.EstimatedCostUSD)
				if e.FallbackTriggered {
					line += " fallback=true"
				}
				if e.PIIRedactionCount > 0 {
					line += fmt.Sprintf(" pii=%d", e.PIIRedactionCount)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")

	return cmd
}
