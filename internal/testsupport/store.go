package testsupport

import (
	"context"
	"testing"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/orders"
	"orderflow/internal/store"
)

// Epoch is the fixed instant fixtures are built around.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Clock is a settable test clock.
type Clock struct {
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time { return c.now }

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) { c.now = t.UTC() }

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewFile creates a media file of the given duration.
func NewFile(t testing.TB, st *store.Store, name string, duration time.Duration) *orders.File {
	t.Helper()

	file, err := st.CreateFile(context.Background(), orders.File{
		Filename:        name,
		DurationSeconds: duration.Seconds(),
		CreatedAt:       Epoch,
	})
	if err != nil {
		t.Fatalf("store.CreateFile: %v", err)
	}
	return file
}

// NewOrder creates an order on a fresh one hour file. Fields left zero on
// tmpl take store defaults; OrderTs defaults to Epoch.
func NewOrder(t testing.TB, st *store.Store, tmpl orders.Order) *orders.Order {
	t.Helper()

	if tmpl.FileID == "" {
		tmpl.FileID = NewFile(t, st, "interview.mp3", time.Hour).ID
	}
	if tmpl.OwnerID == "" {
		tmpl.OwnerID = "owner-1"
	}
	if tmpl.Type == "" {
		tmpl.Type = orders.TypeTranscription
	}
	if tmpl.OrderTs.IsZero() {
		tmpl.OrderTs = Epoch
	}
	order, err := st.CreateOrder(context.Background(), tmpl)
	if err != nil {
		t.Fatalf("store.CreateOrder: %v", err)
	}
	return order
}
