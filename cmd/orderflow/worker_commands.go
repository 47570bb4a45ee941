package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"orderflow/internal/api"
)

func newWorkerCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newAcceptCommand(ctx),
		newSubmitCommand(ctx),
		newExtendCommand(ctx),
	}
}

func newAcceptCommand(ctx *commandContext) *cobra.Command {
	var req api.AcceptRequest

	cmd := &cobra.Command{
		Use:   "accept <order-id>",
		Short: "Claim an order stage for a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Stage = strings.ToUpper(req.Stage)
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Accept(cmd.Context(), args[0], req)
			})
		},
	}
	cmd.Flags().StringVarP(&req.WorkerID, "worker", "w", "", "Worker id")
	cmd.Flags().StringVar(&req.Stage, "stage", "QC", "QC, REVIEW or FINALIZE")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		req   api.SubmitRequest
		score float64
	)

	cmd := &cobra.Command{
		Use:   "submit <order-id>",
		Short: "Hand in work for an accepted stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Stage = strings.ToUpper(req.Stage)
			if cmd.Flags().Changed("score") {
				req.Score = &score
			}
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Submit(cmd.Context(), args[0], req)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&req.WorkerID, "worker", "w", "", "Worker id")
	flags.StringVar(&req.Stage, "stage", "QC", "QC, REVIEW or FINALIZE")
	flags.Float64Var(&score, "score", 0, "QC quality score")
	flags.Float64Var(&req.Earnings, "earnings", 0, "Earnings for the job")
	flags.StringVar(&req.Comment, "comment", "", "Comment for the next stage")
	flags.StringSliceVar(&req.Deliverables, "deliverable", nil, "Deliverable file name (repeatable, finalize only)")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func newExtendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extend <job-id>",
		Short: "Grant the one-time deadline extension on a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Extend(cmd.Context(), args[0])
			})
		},
	}
}

// runAction executes an order or job operation and prints its outcome.
func runAction(cmd *cobra.Command, ctx *commandContext, fn func(*api.Service) (api.ActionResponse, error)) error {
	return ctx.withService(func(svc *api.Service) error {
		resp, err := fn(svc)
		if err != nil {
			return err
		}
		return ctx.emit(cmd, resp, func() error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Message)
			if resp.Order != nil {
				fmt.Fprintf(out, "  Order %s: %s\n", resp.Order.ID, resp.Order.Status)
			}
			if resp.Job != nil {
				fmt.Fprintf(out, "  Job %s: %s %s (%s)\n", resp.Job.ID, resp.Job.Stage, resp.Job.Status, resp.Job.WorkerID)
			}
			if resp.Score != nil {
				fmt.Fprintf(out, "  Score: %.2f\n", *resp.Score)
			}
			if resp.Handoff != nil {
				fmt.Fprintf(out, "  Handed off to %s for %s (job %s)\n", resp.Handoff.WorkerID, resp.Handoff.Stage, resp.Handoff.ID)
			}
			return nil
		})
	})
}
