package session

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"oficina-chat/internal/domain"
	"oficina-chat/pkg/logger"
)

func msgAt(id, convID string, at time.Time) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       "sender",
		SenderRole:     domain.RoleWorkshop,
		Kind:           domain.KindText,
		Content:        "msg " + id,
		CreatedAt:      at,
	}
}

// The stream must end up sorted ascending by (created_at, id) for any
// interleaving of history loads and local appends.
func TestMessageStreamOrdering(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		history []domain.Message
		appends []domain.Message
		want    []string
	}{
		{
			name: "appends out of order",
			appends: []domain.Message{
				msgAt("m3", "c1", base.Add(3*time.Second)),
				msgAt("m1", "c1", base.Add(1*time.Second)),
				msgAt("m2", "c1", base.Add(2*time.Second)),
			},
			want: []string{"m1", "m2", "m3"},
		},
		{
			name: "timestamp tie broken by id",
			appends: []domain.Message{
				msgAt("mb", "c1", base),
				msgAt("ma", "c1", base),
			},
			want: []string{"ma", "mb"},
		},
		{
			name: "history then newer appends",
			history: []domain.Message{
				msgAt("m1", "c1", base.Add(1*time.Second)),
				msgAt("m2", "c1", base.Add(2*time.Second)),
			},
			appends: []domain.Message{
				msgAt("m0", "c1", base),
				msgAt("m3", "c1", base.Add(3*time.Second)),
			},
			want: []string{"m0", "m1", "m2", "m3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeBackend()
			for _, m := range tt.history {
				f.addMessage(m)
			}
			s := NewMessageStream(f, logger.NewNop(), nil)
			if err := s.LoadHistory(context.Background(), "c1"); err != nil {
				t.Fatalf("LoadHistory: %v", err)
			}
			for _, m := range tt.appends {
				s.AppendLocal(m)
			}

			got := s.Snapshot()
			if len(got) != len(tt.want) {
				t.Fatalf("got %d messages, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
				}
			}
			if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Before(got[j]) }) {
				t.Errorf("stream is not sorted")
			}
		})
	}
}

// A message appended twice by id, in any combination of append and
// history load, appears exactly once.
func TestMessageStreamDedup(t *testing.T) {
	base := time.Now()
	f := newFakeBackend()
	f.addMessage(msgAt("m1", "c1", base))

	s := NewMessageStream(f, logger.NewNop(), nil)
	if err := s.LoadHistory(context.Background(), "c1"); err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}

	// At-least-once replay of the same message.
	s.AppendLocal(msgAt("m1", "c1", base))
	s.AppendLocal(msgAt("m1", "c1", base))

	if got := len(s.Snapshot()); got != 1 {
		t.Fatalf("got %d messages, want 1", got)
	}
}

func TestMessageStreamReconcile(t *testing.T) {
	base := time.Now()

	t.Run("swap temp for server copy", func(t *testing.T) {
		s := NewMessageStream(newFakeBackend(), logger.NewNop(), nil)
		s.AppendLocal(msgAt("temp-1", "c1", base))
		s.Reconcile("temp-1", msgAt("m99", "c1", base.Add(time.Second)))

		got := s.Snapshot()
		if len(got) != 1 || got[0].ID != "m99" {
			t.Fatalf("got %v, want single m99", got)
		}
	})

	t.Run("echo arrived before reconcile", func(t *testing.T) {
		s := NewMessageStream(newFakeBackend(), logger.NewNop(), nil)
		s.AppendLocal(msgAt("temp-1", "c1", base))
		s.AppendLocal(msgAt("m99", "c1", base.Add(time.Second)))
		s.Reconcile("temp-1", msgAt("m99", "c1", base.Add(time.Second)))

		got := s.Snapshot()
		if len(got) != 1 || got[0].ID != "m99" {
			t.Fatalf("got %v, want single m99", got)
		}
	})

	t.Run("temp already gone is a no-op", func(t *testing.T) {
		s := NewMessageStream(newFakeBackend(), logger.NewNop(), nil)
		s.AppendLocal(msgAt("temp-1", "c1", base))
		s.Clear()
		s.Reconcile("temp-1", msgAt("m99", "c1", base))

		if got := len(s.Snapshot()); got != 0 {
			t.Fatalf("got %d messages, want 0", got)
		}
	})
}

// A history response that arrives after the stream moved to another
// conversation is discarded, not applied.
func TestMessageStreamStaleHistoryDropped(t *testing.T) {
	base := time.Now()
	f := newFakeBackend()
	f.addMessage(msgAt("a1", "convA", base))
	f.addMessage(msgAt("b1", "convB", base))

	gate := make(chan struct{})
	f.mu.Lock()
	f.listMsgGate["convA"] = gate
	f.mu.Unlock()

	s := NewMessageStream(f, logger.NewNop(), nil)

	errA := make(chan error, 1)
	go func() {
		errA <- s.LoadHistory(context.Background(), "convA")
	}()

	// Wait until A's fetch is in flight, then switch to B.
	waitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.listMsgCalls) == 1
	})
	if err := s.LoadHistory(context.Background(), "convB"); err != nil {
		t.Fatalf("LoadHistory(convB): %v", err)
	}

	close(gate)
	if err := <-errA; err == nil {
		t.Fatalf("stale LoadHistory(convA) returned nil, want ErrStaleResponse")
	}

	got := s.Snapshot()
	if len(got) != 1 || got[0].ID != "b1" {
		t.Fatalf("got %v, want convB history only", got)
	}
	if s.ConversationID() != "convB" {
		t.Errorf("active conversation = %s, want convB", s.ConversationID())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func uniqueMessages(convID string, n int, senderID string, start time.Time) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = domain.Message{
			ID:             fmt.Sprintf("evt-%s-%d", convID, i),
			ConversationID: convID,
			SenderID:       senderID,
			SenderRole:     domain.RoleWorkshop,
			Kind:           domain.KindText,
			Content:        fmt.Sprintf("event %d", i),
			CreatedAt:      start.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}
