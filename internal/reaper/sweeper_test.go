package reaper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/assignment"
	"orderflow/internal/config"
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/reaper"
	"orderflow/internal/store"
	"orderflow/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   *store.Store
	mgr     *assignment.Manager
	sweeper *reaper.Sweeper
	clock   *testsupport.Clock
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithFlatSLA(1)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(testsupport.Epoch.Add(time.Hour))
	st.SetClock(clock.Now)
	mgr := assignment.NewManager(cfg, st, nil, nil)
	mgr.SetClock(clock.Now)
	sweeper := reaper.New(cfg, st, nil)
	sweeper.SetClock(clock.Now)
	return &fixture{cfg: cfg, store: st, mgr: mgr, sweeper: sweeper, clock: clock}
}

func (f *fixture) accept(t *testing.T, tmpl orders.Order, worker string) (*orders.Order, *orders.Job) {
	t.Helper()
	order := testsupport.NewOrder(t, f.store, tmpl)
	job, err := f.mgr.Accept(context.Background(), order.ID, orders.StageQC, worker)
	require.NoError(t, err)
	return order, job
}

func (f *fixture) outbox(t *testing.T, template notifications.Template) []store.OutboxEntry {
	t.Helper()
	entries, err := f.store.ListOutbox(context.Background(), "", 0)
	require.NoError(t, err)
	var out []store.OutboxEntry
	for _, entry := range entries {
		if entry.Template == template {
			out = append(out, entry)
		}
	}
	return out
}

func TestSweepWarnsOnceThenTimesOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, job := f.accept(t, orders.Order{}, "w1")

	f.clock.Advance(30 * time.Minute)
	summary, err := f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.Warned)
	assert.Empty(t, summary.TimedOut)

	f.clock.Advance(15 * time.Minute)
	summary, err = f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, summary.Warned)

	f.clock.Advance(2 * time.Minute)
	summary, err = f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, summary.Warned)
	warnings := f.outbox(t, notifications.TemplateJobTimeoutWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "w1", warnings[0].Recipient)
	assert.Equal(t, "warn:"+job.ID, warnings[0].DedupKey)

	f.clock.Set(job.AcceptedTs.Add(time.Hour))
	summary, err = f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, summary.TimedOut)

	reloaded, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusTranscribed, reloaded.Status)

	timedOut, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.JobTimedOut, timedOut.Status)
	require.NotNil(t, timedOut.CancelledTs)
	assert.True(t, timedOut.CancelledTs.Equal(f.clock.Now()))

	timeouts := f.outbox(t, notifications.TemplateQCJobTimeout)
	require.Len(t, timeouts, 1)
	assert.Equal(t, "w1", timeouts[0].Recipient)
	assert.Equal(t, "1.00", timeouts[0].Data["allowance_hours"])

	summary, err = f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.TimedOut)
	assert.Len(t, f.outbox(t, notifications.TemplateQCJobTimeout), 1)
}

func TestSubmitAfterTimeoutIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, job := f.accept(t, orders.Order{}, "w1")

	f.clock.Set(job.AcceptedTs.Add(time.Hour))
	summary, err := f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{job.ID}, summary.TimedOut)

	_, err = f.mgr.Submit(ctx, assignment.SubmitRequest{
		OrderID:  order.ID,
		Stage:    orders.StageQC,
		WorkerID: "w1",
	})
	assert.ErrorIs(t, err, orders.ErrStaleState)

	reloaded, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusTranscribed, reloaded.Status)
	timedOut, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.JobTimedOut, timedOut.Status)
	assert.Nil(t, timedOut.CompletedTs)
}

func TestSweepHonorsExtension(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, job := f.accept(t, orders.Order{}, "w1")

	_, err := f.mgr.RequestExtension(ctx, job.ID)
	require.NoError(t, err)

	f.clock.Set(job.AcceptedTs.Add(61 * time.Minute))
	summary, err := f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.TimedOut)
	assert.Empty(t, summary.Warned)

	f.clock.Set(job.AcceptedTs.Add(3 * time.Hour))
	summary, err = f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, summary.TimedOut)
}

func TestSweepSkipsManualAndExemptAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exempt, exemptJob := f.accept(t, orders.Order{OrgName: "RemoteLegal"}, "w1")

	manual := testsupport.NewOrder(t, f.store, orders.Order{})
	manualJob, err := f.mgr.Assign(ctx, assignment.AssignRequest{
		OrderID:  manual.ID,
		Stage:    orders.StageQC,
		WorkerID: "w2",
		Mode:     orders.AssignManual,
	})
	require.NoError(t, err)

	f.clock.Advance(4 * time.Hour)
	summary, err := f.sweeper.RunTimeoutSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.TimedOut)
	assert.Empty(t, summary.Warned)

	for _, id := range []string{exemptJob.ID, manualJob.ID} {
		job, err := f.store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, orders.JobAccepted, job.Status)
	}
	reloaded, err := f.store.GetOrder(ctx, exempt.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusQCAssigned, reloaded.Status)
}

func TestSweepIgnoresStagesOutsideSLA(t *testing.T) {
	f := newFixture(t, testsupport.WithSLAStages())
	_, _ = f.accept(t, orders.Order{}, "w1")

	f.clock.Advance(4 * time.Hour)
	summary, err := f.sweeper.RunTimeoutSweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.TimedOut)
}

type scriptedRepo struct {
	active []store.ActiveAssignment
	errs   map[string]error
}

func (r *scriptedRepo) ActiveAssignments(context.Context, []orders.Stage) ([]store.ActiveAssignment, error) {
	return r.active, nil
}

func (r *scriptedRepo) ApplyTransition(_ context.Context, t store.Transition) error {
	return r.errs[t.Job.ID]
}

func (r *scriptedRepo) EnqueueMessages(context.Context, ...notifications.Message) (int, error) {
	return 1, nil
}

func TestSweepIsolatesPerAssignmentFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFlatSLA(1))
	accepted := testsupport.Epoch
	assignmentFor := func(id string) store.ActiveAssignment {
		return store.ActiveAssignment{
			Job: orders.Job{
				ID: id, OrderID: "order-" + id, Stage: orders.StageQC, WorkerID: "w-" + id,
				Status: orders.JobAccepted, AssignMode: orders.AssignAuto, AcceptedTs: accepted,
			},
			Order: orders.Order{ID: "order-" + id, Status: orders.StatusQCAssigned},
			File:  orders.File{ID: "file-" + id, Filename: id + ".mp3", DurationSeconds: 600},
		}
	}
	repo := &scriptedRepo{
		active: []store.ActiveAssignment{assignmentFor("a"), assignmentFor("b"), assignmentFor("c")},
		errs: map[string]error{
			"a": orders.Wrap(orders.ErrStaleState, "update job", "a"),
			"b": errors.New("disk full"),
		},
	}
	sweeper := reaper.New(cfg, repo, nil)
	sweeper.SetClock(func() time.Time { return accepted.Add(time.Hour) })

	summary, err := sweeper.RunTimeoutSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, summary.Skipped)
	assert.Equal(t, []string{"b"}, summary.Failed)
	assert.Equal(t, []string{"c"}, summary.TimedOut)
}
