package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"orderflow/internal/api"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a scheduler pass once",
	}
	sweepCmd.AddCommand(&cobra.Command{
		Use:   "timeouts",
		Short: "Warn about and time out overdue assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				resp, err := svc.RunTimeoutSweep(cmd.Context())
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Timed out: %d\n", len(resp.TimedOut))
					printIDs(cmd, resp.TimedOut)
					fmt.Fprintf(out, "Warned:    %d\n", len(resp.Warned))
					printIDs(cmd, resp.Warned)
					if len(resp.Failed) > 0 {
						fmt.Fprintf(out, "Failed:    %d\n", len(resp.Failed))
						printIDs(cmd, resp.Failed)
					}
					return nil
				})
			})
		},
	})
	sweepCmd.AddCommand(&cobra.Command{
		Use:   "escalation",
		Short: "Send long-unclaimed orders to screening",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				resp, err := svc.RunEscalation(cmd.Context())
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					renderEscalation(cmd, resp)
					return nil
				})
			})
		},
	})
	return sweepCmd
}

func renderEscalation(cmd *cobra.Command, resp api.EscalationResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Escalated: %d\n", len(resp.Escalated))
	keys := make([]int, 0, len(resp.Buckets))
	for key := range resp.Buckets {
		hours, err := strconv.Atoi(key)
		if err == nil {
			keys = append(keys, hours)
		}
	}
	sort.Ints(keys)
	rows := make([][]string, 0, len(keys))
	for _, hours := range keys {
		ids := resp.Buckets[strconv.Itoa(hours)]
		rows = append(rows, []string{fmt.Sprintf("%dh+", hours), strconv.Itoa(len(ids)), strings.Join(ids, ", ")})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Bucket", "Orders", "IDs"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft}))
	}
	if len(resp.Failed) > 0 {
		fmt.Fprintf(out, "Failed: %d\n", len(resp.Failed))
		printIDs(cmd, resp.Failed)
	}
}

func printIDs(cmd *cobra.Command, ids []string) {
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", id)
	}
}

func newOutboxCommand(ctx *commandContext) *cobra.Command {
	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and deliver queued notifications",
	}

	outboxCmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Deliver due notifications once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				resp, err := svc.DispatchOutbox(cmd.Context())
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Sent %d, failed %d, dead %d\n", resp.Sent, resp.Failed, resp.Dead)
					return nil
				})
			})
		},
	})

	var (
		status string
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				entries, err := svc.ListOutbox(cmd.Context(), strings.ToLower(status), limit)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, entries, func() error {
					renderOutbox(cmd, entries)
					return nil
				})
			})
		},
	}
	listCmd.Flags().StringVarP(&status, "status", "s", "", "pending, sent or failed")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	outboxCmd.AddCommand(listCmd)

	outboxCmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Requeue messages that exhausted their delivery attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				n, err := svc.RetryDeadMessages(cmd.Context())
				if err != nil {
					return err
				}
				return ctx.emit(cmd, map[string]int64{"requeued": n}, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d messages\n", n)
					return nil
				})
			})
		},
	})
	return outboxCmd
}

func renderOutbox(cmd *cobra.Command, entries []api.OutboxEntry) {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Outbox is empty")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.ID, e.Template, e.Recipient, e.Status, strconv.Itoa(e.Attempts), e.CreatedAt, e.LastError})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Template", "Recipient", "Status", "Attempts", "Created", "Last Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
}
