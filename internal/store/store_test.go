package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/store"
	"orderflow/internal/testsupport"
)

func acceptTransition(order *orders.Order, stage orders.Stage, worker string, at time.Time) store.Transition {
	return store.Transition{
		OrderID: order.ID,
		Order:   &store.OrderUpdate{From: orders.StageReadyStatus(stage), To: orders.AssignedStatus(stage)},
		NewJob: &orders.Job{
			Stage:      stage,
			WorkerID:   worker,
			InputFile:  orders.DefaultInput(stage),
			AssignMode: orders.AssignAuto,
			AcceptedTs: at,
		},
		At: at,
	}
}

func TestOpenCreatesSchemaAndRoundTripsOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	delivery := testsupport.Epoch.Add(48 * time.Hour)
	order := testsupport.NewOrder(t, st, orders.Order{
		OrgName:        "Acme Legal",
		Type:           orders.TypeTranscriptionFormatting,
		Priority:       1,
		HighDifficulty: true,
		TAT:            12,
		DeliveryTs:     &delivery,
		PWER:           0.31,
		RateBonus:      1.5,
	})

	if order.Status != orders.StatusTranscribed {
		t.Fatalf("expected initial status %s, got %s", orders.StatusTranscribed, order.Status)
	}
	if !order.OrderTs.Equal(testsupport.Epoch) {
		t.Fatalf("expected order ts %v, got %v", testsupport.Epoch, order.OrderTs)
	}
	if order.DeliveryTs == nil || !order.DeliveryTs.Equal(delivery) {
		t.Fatalf("expected delivery ts %v, got %v", delivery, order.DeliveryTs)
	}
	if !order.HighDifficulty || order.Priority != 1 || order.TAT != 12 || order.PWER != 0.31 {
		t.Fatalf("scheduling fields not persisted: %#v", order)
	}

	health, err := st.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.Reachable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if health.TotalOrders != 1 || health.SchemaVersion != 2 || len(health.MissingTables) != 0 {
		t.Fatalf("unexpected health counts: %#v", health)
	}
}

func TestReopenKeepsSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	testsupport.NewOrder(t, first, orders.Order{})
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := testsupport.MustOpenStore(t, cfg)
	list, err := second.ListOrders(context.Background(), store.OrderFilter{})
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected order to survive reopen, got %d", len(list))
	}
}

func TestCreateOrderValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "call.wav", 10*time.Minute)

	if _, err := st.CreateOrder(ctx, orders.Order{FileID: file.ID, OwnerID: "o", Type: "TRANSLATION"}); !errors.Is(err, orders.ErrUnsupportedOrderType) {
		t.Fatalf("expected ErrUnsupportedOrderType, got %v", err)
	}
	if _, err := st.CreateOrder(ctx, orders.Order{FileID: "missing", OwnerID: "o", Type: orders.TypeTranscription}); !errors.Is(err, orders.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	formatting, err := st.CreateOrder(ctx, orders.Order{FileID: file.ID, OwnerID: "o", Type: orders.TypeFormatting})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if formatting.Status != orders.StatusFormatted {
		t.Fatalf("formatting orders enter at FORMATTED, got %s", formatting.Status)
	}
	if _, err := st.GetOrder(ctx, "nope"); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCreateOrderWithFileIsAtomic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created, err := st.CreateOrderWithFile(ctx,
		orders.File{Filename: "call.wav", DurationSeconds: 600},
		orders.Order{OwnerID: "o", Type: orders.TypeTranscription})
	if err != nil {
		t.Fatalf("CreateOrderWithFile failed: %v", err)
	}
	file, err := st.GetFile(ctx, created.FileID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if file.Filename != "call.wav" {
		t.Fatalf("unexpected filename %q", file.Filename)
	}

	_, err = st.CreateOrderWithFile(ctx,
		orders.File{ID: "orphan", Filename: "dup.wav", DurationSeconds: 60},
		orders.Order{ID: created.ID, OwnerID: "o", Type: orders.TypeTranscription})
	if err == nil {
		t.Fatal("expected duplicate order id to fail")
	}
	if _, err := st.GetFile(ctx, "orphan"); !errors.Is(err, orders.ErrFileNotFound) {
		t.Fatalf("expected file insert rolled back, got %v", err)
	}
}

func TestApplyTransitionAssignsAndEnforcesSingleActiveJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	at := testsupport.Epoch.Add(time.Hour)

	order := testsupport.NewOrder(t, st, orders.Order{})
	if err := st.ApplyTransition(ctx, acceptTransition(order, orders.StageQC, "w1", at)); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	updated, err := st.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if updated.Status != orders.StatusQCAssigned || !updated.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected order after assign: %s at %v", updated.Status, updated.UpdatedAt)
	}
	job, err := st.ActiveJob(ctx, order.ID, orders.StageQC)
	if err != nil {
		t.Fatalf("ActiveJob failed: %v", err)
	}
	if job.WorkerID != "w1" || job.Status != orders.JobAccepted || !job.AcceptedTs.Equal(at) {
		t.Fatalf("unexpected job: %#v", job)
	}

	// A second ACCEPTED row for the same stage is refused even without an order CAS.
	err = st.ApplyTransition(ctx, store.Transition{
		OrderID: order.ID,
		NewJob:  &orders.Job{Stage: orders.StageQC, WorkerID: "w2", AssignMode: orders.AssignManual, AcceptedTs: at},
		At:      at,
	})
	if !errors.Is(err, orders.ErrAssignmentConflict) {
		t.Fatalf("expected ErrAssignmentConflict, got %v", err)
	}

	// The same worker cannot hold two accepted jobs.
	other := testsupport.NewOrder(t, st, orders.Order{})
	err = st.ApplyTransition(ctx, acceptTransition(other, orders.StageQC, "w1", at))
	if !errors.Is(err, orders.ErrAssignmentConflict) {
		t.Fatalf("expected worker conflict, got %v", err)
	}
	reloaded, err := st.GetOrder(ctx, other.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if reloaded.Status != orders.StatusTranscribed {
		t.Fatalf("rolled back transition must leave order untouched, got %s", reloaded.Status)
	}

	jobs, err := st.ListJobs(ctx, order.ID)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one job, got %d", len(jobs))
	}
}

func TestApplyTransitionCompareAndSwap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	at := testsupport.Epoch.Add(time.Hour)

	order := testsupport.NewOrder(t, st, orders.Order{})
	if err := st.ApplyTransition(ctx, acceptTransition(order, orders.StageQC, "w1", at)); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	err := st.ApplyTransition(ctx, acceptTransition(order, orders.StageQC, "w2", at))
	if !errors.Is(err, orders.ErrStaleState) {
		t.Fatalf("expected ErrStaleState on lost race, got %v", err)
	}
	if orders.KindOf(err) != orders.KindConflict {
		t.Fatalf("expected conflict kind, got %s", orders.KindOf(err))
	}

	job, err := st.ActiveJob(ctx, order.ID, orders.StageQC)
	if err != nil {
		t.Fatalf("ActiveJob failed: %v", err)
	}
	completed := at.Add(30 * time.Minute)
	earnings := 4.25
	complete := store.Transition{
		OrderID: order.ID,
		Order:   &store.OrderUpdate{From: orders.StatusQCAssigned, To: orders.StatusQCCompleted},
		Job:     &store.JobUpdate{ID: job.ID, From: orders.JobAccepted, To: orders.JobCompleted, Earnings: &earnings, CompletedTs: &completed},
		At:      completed,
	}
	if err := st.ApplyTransition(ctx, complete); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if err := st.ApplyTransition(ctx, complete); !errors.Is(err, orders.ErrStaleState) {
		t.Fatalf("expected replayed completion to be stale, got %v", err)
	}

	missing := store.Transition{
		OrderID: "missing",
		Order:   &store.OrderUpdate{From: orders.StatusTranscribed, To: orders.StatusQCAssigned},
	}
	if err := st.ApplyTransition(ctx, missing); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	illegal := store.Transition{
		OrderID: order.ID,
		Order:   &store.OrderUpdate{From: orders.StatusQCCompleted, To: orders.StatusDelivered},
	}
	if err := st.ApplyTransition(ctx, illegal); !errors.Is(err, orders.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	done, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if done.Status != orders.JobCompleted || done.Earnings != earnings || done.CompletedTs == nil {
		t.Fatalf("unexpected completed job: %#v", done)
	}
}

func TestRequestExtensionOnlyOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	order := testsupport.NewOrder(t, st, orders.Order{})
	if err := st.ApplyTransition(ctx, acceptTransition(order, orders.StageQC, "w1", testsupport.Epoch)); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	job, err := st.ActiveJob(ctx, order.ID, orders.StageQC)
	if err != nil {
		t.Fatalf("ActiveJob failed: %v", err)
	}
	extend := store.Transition{
		OrderID: order.ID,
		Job:     &store.JobUpdate{ID: job.ID, From: orders.JobAccepted, To: orders.JobAccepted, RequestExtension: true},
	}
	if err := st.ApplyTransition(ctx, extend); err != nil {
		t.Fatalf("first extension failed: %v", err)
	}
	if err := st.ApplyTransition(ctx, extend); !errors.Is(err, orders.ErrStaleState) {
		t.Fatalf("expected duplicate extension to be stale, got %v", err)
	}
	job, err = st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if !job.ExtensionRequested {
		t.Fatal("expected extension flag to be persisted")
	}
}

func TestReadyOrdersHonorsSettleAndReviewHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	settled := testsupport.NewOrder(t, st, orders.Order{Type: orders.TypeFormatting})
	fresh := testsupport.NewOrder(t, st, orders.Order{
		Type:    orders.TypeFormatting,
		OrderTs: testsupport.Epoch.Add(10 * time.Minute),
	})

	ready, err := st.ReadyOrders(ctx, orders.StageReview, testsupport.Epoch.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("ReadyOrders failed: %v", err)
	}
	if len(ready) != 1 || ready[0].Order.ID != settled.ID {
		t.Fatalf("expected only settled order, got %#v", ready)
	}
	if ready[0].ReviewCompleted {
		t.Fatal("order without review history reported as reviewed")
	}

	ready, err = st.ReadyOrders(ctx, orders.StageReview, testsupport.Epoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReadyOrders failed: %v", err)
	}
	if len(ready) != 2 || ready[0].Order.ID != settled.ID || ready[1].Order.ID != fresh.ID {
		t.Fatalf("expected order_ts ordering, got %#v", ready)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	st.SetClock(func() time.Time { return testsupport.Epoch })
	ctx := context.Background()

	warn := notifications.MustMessage(notifications.TemplateJobTimeoutWarning, "w1",
		notifications.Payload{"filename": "a.mp3", "remaining": "15m"}).WithDedupKey("warn:job-1")
	digest := notifications.MustMessage(notifications.TemplatePendingFilesAlert, "ops",
		notifications.Payload{"count": 3})

	written, err := st.EnqueueMessages(ctx, warn, digest)
	if err != nil {
		t.Fatalf("EnqueueMessages failed: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected 2 messages written, got %d", written)
	}
	again := notifications.MustMessage(notifications.TemplateJobTimeoutWarning, "w1", nil).WithDedupKey("warn:job-1")
	written, err = st.EnqueueMessages(ctx, again)
	if err != nil {
		t.Fatalf("EnqueueMessages failed: %v", err)
	}
	if written != 0 {
		t.Fatalf("expected dedup to suppress message, got %d written", written)
	}

	pending, err := st.PendingMessages(ctx, testsupport.Epoch, 10)
	if err != nil {
		t.Fatalf("PendingMessages failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if got := pending[0].Data.String("filename"); pending[0].ID == warn.ID && got != "a.mp3" {
		t.Fatalf("payload not decoded, got %q", got)
	}

	if err := st.MarkMessageSent(ctx, warn.ID, testsupport.Epoch); err != nil {
		t.Fatalf("MarkMessageSent failed: %v", err)
	}
	next := testsupport.Epoch.Add(30 * time.Second)
	if err := st.MarkMessageFailed(ctx, digest.ID, 1, "connection refused", next, false); err != nil {
		t.Fatalf("MarkMessageFailed failed: %v", err)
	}
	pending, err = st.PendingMessages(ctx, testsupport.Epoch, 10)
	if err != nil {
		t.Fatalf("PendingMessages failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("backed off message must not be due yet, got %d", len(pending))
	}
	pending, err = st.PendingMessages(ctx, next, 10)
	if err != nil {
		t.Fatalf("PendingMessages failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("expected retried digest, got %#v", pending)
	}

	if err := st.MarkMessageFailed(ctx, digest.ID, 5, "gone", next, true); err != nil {
		t.Fatalf("MarkMessageFailed failed: %v", err)
	}
	counts, err := st.OutboxCounts(ctx)
	if err != nil {
		t.Fatalf("OutboxCounts failed: %v", err)
	}
	if counts[store.OutboxSent] != 1 || counts[store.OutboxFailed] != 1 {
		t.Fatalf("unexpected outbox counts: %#v", counts)
	}
	revived, err := st.RetryDeadMessages(ctx)
	if err != nil {
		t.Fatalf("RetryDeadMessages failed: %v", err)
	}
	if revived != 1 {
		t.Fatalf("expected 1 revived message, got %d", revived)
	}
	if err := st.MarkMessageSent(ctx, "unknown", testsupport.Epoch); err == nil {
		t.Fatal("expected error for unknown message id")
	}
}

func TestTransitionMessagesRollBackWithState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	claimed := testsupport.NewOrder(t, st, orders.Order{})
	if err := st.ApplyTransition(ctx, acceptTransition(claimed, orders.StageQC, "w1", testsupport.Epoch)); err != nil {
		t.Fatalf("first assign failed: %v", err)
	}
	stale := acceptTransition(claimed, orders.StageQC, "w2", testsupport.Epoch)
	stale.Messages = []notifications.Message{
		notifications.MustMessage(notifications.TemplateQCJobAssigned, "w2", notifications.Payload{"filename": "x"}),
	}
	if err := st.ApplyTransition(ctx, stale); !errors.Is(err, orders.ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}

	// w1 is busy, so the order step succeeds and the job insert fails.
	other := testsupport.NewOrder(t, st, orders.Order{})
	busy := acceptTransition(other, orders.StageQC, "w1", testsupport.Epoch)
	busy.Messages = stale.Messages
	if err := st.ApplyTransition(ctx, busy); !errors.Is(err, orders.ErrAssignmentConflict) {
		t.Fatalf("expected ErrAssignmentConflict, got %v", err)
	}
	reloaded, err := st.GetOrder(ctx, other.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if reloaded.Status != orders.StatusTranscribed {
		t.Fatalf("expected order status rolled back to TRANSCRIBED, got %s", reloaded.Status)
	}

	entries, err := st.ListOutbox(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListOutbox failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no outbox rows after rollback, got %d", len(entries))
	}
}

func TestStatsAndUnassignedOrders(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	idle := testsupport.NewOrder(t, st, orders.Order{})
	busy := testsupport.NewOrder(t, st, orders.Order{})
	if err := st.ApplyTransition(ctx, acceptTransition(busy, orders.StageQC, "w1", testsupport.Epoch)); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	unassigned, err := st.UnassignedOrders(ctx, []orders.Status{orders.StatusTranscribed, orders.StatusQCAssigned})
	if err != nil {
		t.Fatalf("UnassignedOrders failed: %v", err)
	}
	if len(unassigned) != 1 || unassigned[0].ID != idle.ID {
		t.Fatalf("expected only idle order, got %#v", unassigned)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[orders.StatusTranscribed] != 1 || stats[orders.StatusQCAssigned] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
	health, err := st.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Ready != 1 || health.Assigned != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}
