package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orderflow/internal/api"
)

func newOrderCommand(ctx *commandContext) *cobra.Command {
	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Create and inspect orders",
	}
	orderCmd.AddCommand(newOrderAddCommand(ctx))
	orderCmd.AddCommand(newOrderShowCommand(ctx))
	orderCmd.AddCommand(newOrderListCommand(ctx))
	return orderCmd
}

func newOrderAddCommand(ctx *commandContext) *cobra.Command {
	var (
		req      api.CreateOrderRequest
		duration time.Duration
		delivery string
	)

	cmd := &cobra.Command{
		Use:   "add <filename>",
		Short: "Register a transcribed file and open its order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Filename = args[0]
			req.DurationSeconds = duration.Seconds()
			req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
			if delivery != "" {
				ts, err := time.Parse(time.RFC3339, delivery)
				if err != nil {
					return fmt.Errorf("parse --delivery: %w", err)
				}
				req.DeliveryTs = &ts
			}
			return ctx.withService(func(svc *api.Service) error {
				order, err := svc.CreateOrder(cmd.Context(), req)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, order, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Created order %s (%s)\n", order.ID, order.Status)
					return nil
				})
			})
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&duration, "duration", 0, "Media duration, e.g. 45m")
	flags.StringVar(&req.OwnerID, "owner", "", "Owning customer id")
	flags.StringVar(&req.OrgName, "org", "", "Customer organization name")
	flags.StringVar(&req.Type, "type", "", "TRANSCRIPTION, TRANSCRIPTION_FORMATTING or FORMATTING")
	flags.IntVar(&req.Priority, "priority", 0, "Priority; higher ranks first")
	flags.BoolVar(&req.HighDifficulty, "high-difficulty", false, "Mark the order as high difficulty")
	flags.IntVar(&req.TAT, "tat", 0, "Turnaround time in days")
	flags.StringVar(&delivery, "delivery", "", "Promised delivery time (RFC3339)")
	flags.Float64Var(&req.PWER, "pwer", 0, "Predicted word error rate")
	flags.Float64Var(&req.RateBonus, "rate-bonus", 0, "Rate bonus offered to workers")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func newOrderShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show an order with its file and job history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				detail, err := svc.ShowOrder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, detail, func() error {
					renderOrderDetail(cmd, detail)
					return nil
				})
			})
		},
	}
}

func newOrderListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		owner    string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := range statuses {
				statuses[i] = strings.ToUpper(strings.TrimSpace(statuses[i]))
			}
			return ctx.withService(func(svc *api.Service) error {
				items, err := svc.ListOrders(cmd.Context(), statuses, owner, limit)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, api.OrderListResponse{Items: items}, func() error {
					renderOrderTable(cmd, items, "No orders found")
					return nil
				})
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	return cmd
}

func newWorkCommand(ctx *commandContext) *cobra.Command {
	workCmd := &cobra.Command{
		Use:   "work",
		Short: "Inspect the work queue",
	}

	var (
		worker string
		stage  string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List orders a worker may accept, best first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				items, err := svc.ListWork(cmd.Context(), worker, strings.ToUpper(stage))
				if err != nil {
					return err
				}
				return ctx.emit(cmd, api.OrderListResponse{Items: items}, func() error {
					renderOrderTable(cmd, items, "No work available")
					return nil
				})
			})
		},
	}
	listCmd.Flags().StringVarP(&worker, "worker", "w", "", "Worker id")
	listCmd.Flags().StringVar(&stage, "stage", "QC", "QC, REVIEW or FINALIZE")
	_ = listCmd.MarkFlagRequired("worker")
	workCmd.AddCommand(listCmd)
	return workCmd
}

func renderOrderTable(cmd *cobra.Command, items []api.Order, empty string) {
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, empty)
		return
	}
	rows := make([][]string, 0, len(items))
	for _, o := range items {
		rows = append(rows, []string{
			o.ID,
			o.Status,
			o.Type,
			o.OwnerID,
			strconv.Itoa(o.Priority),
			strconv.Itoa(o.TAT),
			strconv.Itoa(o.Progress) + "%",
			o.OrderTs,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Status", "Type", "Owner", "Priority", "TAT", "Progress", "Ordered"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
}

func renderOrderDetail(cmd *cobra.Command, detail *api.OrderDetail) {
	out := cmd.OutOrStdout()
	o := detail.Order
	fmt.Fprintf(out, "Order %s\n", o.ID)
	fmt.Fprintf(out, "  Status:     %s\n", o.Status)
	fmt.Fprintf(out, "  Type:       %s\n", o.Type)
	fmt.Fprintf(out, "  Owner:      %s\n", o.OwnerID)
	if o.OrgName != "" {
		fmt.Fprintf(out, "  Org:        %s\n", o.OrgName)
	}
	fmt.Fprintf(out, "  Progress:   %d%%\n", o.Progress)
	fmt.Fprintf(out, "  Screened:   %d\n", o.ScreenCount)
	if o.ReportOption != "" {
		fmt.Fprintf(out, "  Report:     %s %s\n", o.ReportMode, o.ReportOption)
	}
	if o.DeliveredTs != "" {
		fmt.Fprintf(out, "  Delivered:  %s by %s\n", o.DeliveredTs, o.DeliveredBy)
	}
	if o.ReleasedTs != "" {
		fmt.Fprintf(out, "  Released:   %s\n", o.ReleasedTs)
	}
	if detail.File != nil {
		fmt.Fprintf(out, "  File:       %s (%s)\n", detail.File.Filename,
			(time.Duration(detail.File.DurationSeconds) * time.Second).String())
	}
	if len(detail.Jobs) == 0 {
		fmt.Fprintln(out, "  No jobs")
		return
	}
	rows := make([][]string, 0, len(detail.Jobs))
	for _, j := range detail.Jobs {
		rows = append(rows, []string{
			j.ID, j.Stage, j.WorkerID, j.Status, j.AssignMode,
			strconv.FormatFloat(j.Earnings, 'f', 2, 64), yesNo(j.ExtensionRequested), j.AcceptedTs,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Job", "Stage", "Worker", "Status", "Mode", "Earnings", "Extended", "Accepted"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
}
