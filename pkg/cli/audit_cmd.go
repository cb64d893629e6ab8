package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"opsgate/internal/domain"
)

func newAuditCmd() *cobra.Command {
	var (
		requestID   string
		action      string
		performedBy int64
		limit       int
		offset      int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit log entries",
		Args:  cobra.NoArgs,
		Example: `  # Full history of one request
  opsgate audit --request-id 6f1b...

  # Every rejection performed by user 2
  opsgate audit --action REJECTED --performed-by 2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			filter := domain.AuditFilter{
				Page: domain.Page{Limit: limit, Offset: offset},
			}
			if requestID != "" {
				filter.QueryRequestID = &requestID
			}
			if action != "" {
				act := domain.AuditAction(action)
				filter.Action = &act
			}
			if performedBy != 0 {
				filter.PerformedBy = &performedBy
			}

			entries, total, err := a.Audit.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				items := make([]map[string]interface{}, 0, len(entries))
				for _, e := range entries {
					items = append(items, map[string]interface{}{
						"id":             e.ID,
						"queryRequestId": e.QueryRequestID,
						"action":         e.Action,
						"performedBy":    e.PerformedBy,
						"details":        e.Details,
						"createdAt":      e.CreatedAt,
					})
				}
				return printJSON(os.Stdout, map[string]interface{}{
					"data":  items,
					"total": total,
				})
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					strconv.FormatInt(e.ID, 10),
					e.CreatedAt.Format(time.RFC3339),
					string(e.Action),
					strconv.FormatInt(e.PerformedBy, 10),
					truncate(e.QueryRequestID, 12),
				})
			}
			if err := printTable(os.Stdout, []string{"ID", "AT", "ACTION", "BY", "REQUEST"}, rows); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%d of %d\n", len(entries), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "Filter by request id")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action (SUBMITTED, REJECTED, EXECUTED, FAILED)")
	cmd.Flags().Int64Var(&performedBy, "performed-by", 0, "Filter by acting user id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	return cmd
}
