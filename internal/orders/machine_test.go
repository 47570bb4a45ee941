package orders_test

import (
	"errors"
	"fmt"
	"testing"

	"orderflow/internal/orders"
)

func TestCanTransitionMainPath(t *testing.T) {
	path := []orders.Status{
		orders.StatusTranscribed,
		orders.StatusQCAssigned,
		orders.StatusQCCompleted,
		orders.StatusReviewerAssigned,
		orders.StatusFormatted,
		orders.StatusFinalizerAssigned,
		orders.StatusFinalizingCompleted,
		orders.StatusPreDelivered,
		orders.StatusDelivered,
	}
	for i := 0; i+1 < len(path); i++ {
		if !orders.CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransitionRejectsSkipsAndTerminal(t *testing.T) {
	cases := []struct {
		from orders.Status
		to   orders.Status
	}{
		{orders.StatusTranscribed, orders.StatusQCCompleted},
		{orders.StatusTranscribed, orders.StatusDelivered},
		{orders.StatusQCAssigned, orders.StatusFormatted},
		{orders.StatusDelivered, orders.StatusCancelled},
		{orders.StatusCancelled, orders.StatusTranscribed},
		{orders.StatusReviewerAssigned, orders.StatusReviewerAssigned},
	}
	for _, tc := range cases {
		if orders.CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestRevertStatusNeverMovesForward(t *testing.T) {
	cases := map[orders.Status]orders.Status{
		orders.StatusQCAssigned:        orders.StatusTranscribed,
		orders.StatusReviewerAssigned:  orders.StatusFormatted,
		orders.StatusFinalizerAssigned: orders.StatusFormatted,
	}
	for from, want := range cases {
		got, ok := orders.RevertStatus(from)
		if !ok || got != want {
			t.Fatalf("RevertStatus(%s) = %s, %v; want %s", from, got, ok, want)
		}
		if !orders.CanTransition(from, got) {
			t.Fatalf("revert edge %s -> %s missing from transition table", from, got)
		}
	}
	if _, ok := orders.RevertStatus(orders.StatusTranscribed); ok {
		t.Fatal("expected no revert for an unassigned status")
	}
}

func TestReadinessResolvesFormattedByReviewHistory(t *testing.T) {
	if !orders.IsReady(orders.StageReview, orders.StatusFormatted, false) {
		t.Fatal("formatted order without completed review should be review-ready")
	}
	if orders.IsReady(orders.StageReview, orders.StatusFormatted, true) {
		t.Fatal("formatted order with completed review should not be review-ready")
	}
	if !orders.IsReady(orders.StageFinalize, orders.StatusFormatted, true) {
		t.Fatal("formatted order with completed review should be finalize-ready")
	}
	if orders.IsReady(orders.StageFinalize, orders.StatusQCCompleted, true) {
		t.Fatal("qc-completed order should not be finalize-ready")
	}
}

func TestStagePlans(t *testing.T) {
	if next, ok := orders.NextStage(orders.TypeTranscriptionFormatting, orders.StageQC); !ok || next != orders.StageReview {
		t.Fatalf("unexpected next stage after QC: %s %v", next, ok)
	}
	if _, ok := orders.NextStage(orders.TypeTranscription, orders.StageQC); ok {
		t.Fatal("transcription orders have no stage after QC")
	}
	if orders.HasStage(orders.TypeFormatting, orders.StageQC) {
		t.Fatal("formatting orders skip QC")
	}
	if orders.InitialStatus(orders.TypeFormatting) != orders.StatusFormatted {
		t.Fatal("formatting orders enter at FORMATTED")
	}
}

func TestProgressIncreasesAlongPlan(t *testing.T) {
	prev := -1
	for _, status := range []orders.Status{
		orders.StatusTranscribed,
		orders.StatusQCAssigned,
		orders.StatusQCCompleted,
		orders.StatusReviewerAssigned,
		orders.StatusFormatted,
		orders.StatusFinalizerAssigned,
		orders.StatusFinalizingCompleted,
		orders.StatusPreDelivered,
		orders.StatusDelivered,
	} {
		p := orders.Progress(orders.TypeTranscriptionFormatting, status)
		if p <= prev {
			t.Fatalf("progress for %s (%d) not above previous (%d)", status, p, prev)
		}
		prev = p
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := orders.ParseStatus(" qc_assigned ")
	if !ok || status != orders.StatusQCAssigned {
		t.Fatalf("unexpected parse result: %s %v", status, ok)
	}
	if _, ok := orders.ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status to fail parsing")
	}
}

func TestKindOfClassifiesWrappedSentinels(t *testing.T) {
	err := fmt.Errorf("accept order o-1: %w", orders.Wrap(orders.ErrStaleState, "assign", "order moved"))
	if !errors.Is(err, orders.ErrStaleState) {
		t.Fatal("expected wrapped error to match sentinel")
	}
	if kind := orders.KindOf(err); kind != orders.KindConflict {
		t.Fatalf("expected conflict kind, got %s", kind)
	}
	if kind := orders.KindOf(errors.New("disk full")); kind != orders.KindInfrastructure {
		t.Fatalf("expected infrastructure kind, got %s", kind)
	}
	if kind := orders.KindOf(nil); kind != "" {
		t.Fatalf("expected empty kind for nil, got %s", kind)
	}
}
