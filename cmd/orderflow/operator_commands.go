package main

import (
	"github.com/spf13/cobra"

	"orderflow/internal/api"
)

func newOperatorCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newApproveCommand(ctx),
		newRejectCommand(ctx),
		newDeliverCommand(ctx),
		newCancelCommand(ctx),
		newReleaseCommand(ctx),
		newReassignCommand(ctx),
		newUnassignCommand(ctx),
	}
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <order-id>",
		Short: "Accept a submission held for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Approve(cmd.Context(), args[0])
			})
		},
	}
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	var req api.RejectRequest
	cmd := &cobra.Command{
		Use:   "reject <order-id>",
		Short: "Return a held submission to the work queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Reject(cmd.Context(), args[0], req)
			})
		},
	}
	cmd.Flags().StringVarP(&req.Comment, "comment", "m", "", "Reason shown to the next worker")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func newDeliverCommand(ctx *commandContext) *cobra.Command {
	var req api.DeliverRequest
	cmd := &cobra.Command{
		Use:   "deliver <order-id>",
		Short: "Release a finished order to its owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Deliver(cmd.Context(), args[0], req)
			})
		},
	}
	cmd.Flags().StringVar(&req.DeliveredBy, "by", "", "Operator delivering the order")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var req api.CancelRequest
	cmd := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel or refund an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Cancel(cmd.Context(), args[0], req)
			})
		},
	}
	cmd.Flags().BoolVar(&req.Refund, "refund", false, "Refund instead of cancel")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "Reason recorded with the cancellation")
	return cmd
}

func newReleaseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "release <order-id>",
		Short: "Return a screened order to the status it was escalated from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Release(cmd.Context(), args[0])
			})
		},
	}
}

func newReassignCommand(ctx *commandContext) *cobra.Command {
	var req api.ReassignRequest
	cmd := &cobra.Command{
		Use:   "reassign <order-id>",
		Short: "Move an active job to another worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Reassign(cmd.Context(), args[0], req)
			})
		},
	}
	cmd.Flags().StringVar(&req.AssignmentID, "job", "", "Active job id")
	cmd.Flags().StringVarP(&req.NewWorkerID, "worker", "w", "", "Worker taking over")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "Reason recorded with the reassignment")
	cmd.Flags().BoolVar(&req.PreserveEarnings, "preserve-earnings", false, "Keep the previous worker's earnings")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func newUnassignCommand(ctx *commandContext) *cobra.Command {
	var req api.UnassignRequest
	cmd := &cobra.Command{
		Use:   "unassign <order-id>",
		Short: "Remove a worker from an active job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, ctx, func(svc *api.Service) (api.ActionResponse, error) {
				return svc.Unassign(cmd.Context(), args[0], req)
			})
		},
	}
	cmd.Flags().StringVar(&req.AssignmentID, "job", "", "Active job id")
	cmd.Flags().BoolVar(&req.Reject, "reject", false, "Mark the job rejected instead of cancelled")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "Reason recorded with the removal")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
