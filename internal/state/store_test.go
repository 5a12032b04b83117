package state

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gordonmeng2021/Email-AI/internal/ai"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProcessedIDsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.AddProcessedID(ctx, id); err != nil {
			t.Fatalf("AddProcessedID: %v", err)
		}
	}
	// duplicate insert is ignored
	if err := s.AddProcessedID(ctx, "b"); err != nil {
		t.Fatalf("AddProcessedID dup: %v", err)
	}

	ids, err := s.LoadProcessedIDs(ctx)
	if err != nil {
		t.Fatalf("LoadProcessedIDs: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v, want 3 entries", ids)
	}
	if ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("insertion order lost: %v", ids)
	}
}

func TestTrimProcessedKeepsNewest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.AddProcessedID(ctx, fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("AddProcessedID: %v", err)
		}
	}
	if err := s.TrimProcessed(ctx, 4); err != nil {
		t.Fatalf("TrimProcessed: %v", err)
	}

	ids, _ := s.LoadProcessedIDs(ctx)
	if len(ids) != 4 {
		t.Fatalf("ids = %v, want 4 entries", ids)
	}
	if ids[0] != "msg-6" || ids[3] != "msg-9" {
		t.Fatalf("wrong entries survived: %v", ids)
	}
}

func TestStatsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec, err := s.LoadStats(ctx)
	if err != nil {
		t.Fatalf("LoadStats empty: %v", err)
	}
	if rec.MessagesProcessed != 0 {
		t.Fatalf("empty stats = %+v", rec)
	}

	now := time.Now().Truncate(time.Second)
	want := StatsRecord{MessagesProcessed: 7, DraftsGenerated: 3, HoursSaved: 0.25, LastUpdated: now}
	if err := s.SaveStats(ctx, want); err != nil {
		t.Fatalf("SaveStats: %v", err)
	}

	got, err := s.LoadStats(ctx)
	if err != nil {
		t.Fatalf("LoadStats: %v", err)
	}
	if got.MessagesProcessed != 7 || got.DraftsGenerated != 3 || got.HoursSaved != 0.25 {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !got.LastUpdated.Equal(now) {
		t.Fatalf("last updated = %v, want %v", got.LastUpdated, now)
	}
}

func TestLastSyncRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ts, err := s.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt empty: %v", err)
	}
	if !ts.IsZero() {
		t.Fatalf("expected zero time, got %v", ts)
	}

	now := time.Now().Truncate(time.Second)
	if err := s.SetLastSyncAt(ctx, now); err != nil {
		t.Fatalf("SetLastSyncAt: %v", err)
	}
	ts, err = s.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt: %v", err)
	}
	if !ts.Equal(now) {
		t.Fatalf("last sync = %v, want %v", ts, now)
	}
}

func TestCustomLabelCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	label := ai.CustomLabel{ID: "l1", Name: "Invoices", Prompt: "mentions an invoice", Enabled: true}
	if err := s.UpsertCustomLabel(ctx, label); err != nil {
		t.Fatalf("UpsertCustomLabel: %v", err)
	}

	labels, err := s.ListCustomLabels(ctx)
	if err != nil {
		t.Fatalf("ListCustomLabels: %v", err)
	}
	if len(labels) != 1 || labels[0].Name != "Invoices" || !labels[0].Enabled {
		t.Fatalf("labels = %+v", labels)
	}

	label.Enabled = false
	if err := s.UpsertCustomLabel(ctx, label); err != nil {
		t.Fatalf("UpsertCustomLabel update: %v", err)
	}
	labels, _ = s.ListCustomLabels(ctx)
	if len(labels) != 1 || labels[0].Enabled {
		t.Fatalf("update lost: %+v", labels)
	}

	if err := s.DeleteCustomLabel(ctx, "l1"); err != nil {
		t.Fatalf("DeleteCustomLabel: %v", err)
	}
	labels, _ = s.ListCustomLabels(ctx)
	if len(labels) != 0 {
		t.Fatalf("delete lost: %+v", labels)
	}
}

func TestCustomLabelEvictionByRecency(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Insert one label, touch it, then fill past the bound. The
	// touched label has the freshest last_used_at mark and survives.
	if err := s.UpsertCustomLabel(ctx, ai.CustomLabel{ID: "keep", Name: "Keep", Prompt: "p", Enabled: true}); err != nil {
		t.Fatalf("UpsertCustomLabel: %v", err)
	}

	for i := 0; i < maxCustomLabels; i++ {
		l := ai.CustomLabel{ID: fmt.Sprintf("l%d", i), Name: fmt.Sprintf("L%d", i), Prompt: "p", Enabled: true}
		if err := s.UpsertCustomLabel(ctx, l); err != nil {
			t.Fatalf("UpsertCustomLabel %d: %v", i, err)
		}
		if i == maxCustomLabels/2 {
			// Upserts within one second tie on last_used_at; a future
			// mark keeps "keep" strictly newer than the tail inserts.
			if _, err := s.DB.ExecContext(ctx, `UPDATE custom_labels SET last_used_at = ? WHERE id = 'keep'`,
				time.Now().Add(time.Hour).Unix()); err != nil {
				t.Fatalf("touch: %v", err)
			}
		}
	}

	labels, err := s.ListCustomLabels(ctx)
	if err != nil {
		t.Fatalf("ListCustomLabels: %v", err)
	}
	if len(labels) != maxCustomLabels {
		t.Fatalf("labels = %d, want %d", len(labels), maxCustomLabels)
	}
	found := false
	for _, l := range labels {
		if l.ID == "keep" {
			found = true
		}
	}
	if !found {
		t.Fatal("recently used label was evicted")
	}
}

func TestOutboxLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.AppendOutbox(ctx, "mail.processed", "mail.processed", []byte(`{"x":1}`), "mail.processed|m1"); err != nil {
		t.Fatalf("AppendOutbox: %v", err)
	}
	// duplicate msg id is ignored
	if err := s.AppendOutbox(ctx, "mail.processed", "mail.processed", []byte(`{"x":2}`), "mail.processed|m1"); err != nil {
		t.Fatalf("AppendOutbox dup: %v", err)
	}

	msgs, err := s.DequeueOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueOutbox: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("msgs = %d, want 1", len(msgs))
	}

	if err := s.MarkPublished(ctx, msgs[0].ID); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	msgs, _ = s.DequeueOutbox(ctx, 10)
	if len(msgs) != 0 {
		t.Fatalf("published message still queued: %v", msgs)
	}
}

func TestOutboxRetryDefersDelivery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.AppendOutbox(ctx, "mail.processed", "mail.processed", []byte(`{}`), "mail.processed|m2"); err != nil {
		t.Fatalf("AppendOutbox: %v", err)
	}
	msgs, _ := s.DequeueOutbox(ctx, 10)
	if len(msgs) != 1 {
		t.Fatalf("msgs = %d, want 1", len(msgs))
	}

	if err := s.MarkOutboxRetry(ctx, msgs[0].ID, time.Hour); err != nil {
		t.Fatalf("MarkOutboxRetry: %v", err)
	}
	msgs, _ = s.DequeueOutbox(ctx, 10)
	if len(msgs) != 0 {
		t.Fatalf("deferred message dequeued early: %v", msgs)
	}
}
