package services

import (
	"context"
	"testing"
	"time"
)

func TestAggregateStatus(t *testing.T) {
	now := time.Now()
	open := &Participant{Role: RoleA}
	done := &Participant{Role: RoleB, CompletedAt: &now}
	cases := []struct {
		name string
		ps   []*Participant
		want SessionStatus
	}{
		{"none", nil, StatusInProgress},
		{"all open", []*Participant{open, open}, StatusInProgress},
		{"one done", []*Participant{open, done}, StatusWaiting},
		{"all done", []*Participant{done, done}, StatusReady},
	}
	for _, tc := range cases {
		if got := AggregateStatus(tc.ps); got != tc.want {
			t.Fatalf("%s: AggregateStatus = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestRecomputeWritesDerivedStatus(t *testing.T) {
	store := newStubStore()
	created := newTestSession(store)
	agg := NewStatusAggregator(store)
	ctx := context.Background()

	// Called without any committed completion: never writes in_progress.
	status, err := agg.Recompute(ctx, created.SessionID)
	if err != nil || status != StatusWaiting {
		t.Fatalf("Recompute = %s, %v; want waiting", status, err)
	}

	for _, p := range store.participants {
		now := time.Now()
		p.CompletedAt = &now
	}
	status, err = agg.Recompute(ctx, created.SessionID)
	if err != nil || status != StatusReady {
		t.Fatalf("Recompute = %s, %v; want ready", status, err)
	}
	sess, _ := store.GetSession(ctx, created.SessionID)
	if sess.Status != StatusReady {
		t.Fatalf("stored = %s, want ready", sess.Status)
	}
}

func TestRecomputeNeverRegressesReady(t *testing.T) {
	store := newStubStore()
	created := newTestSession(store)
	store.sessions[created.SessionID].Status = StatusReady
	// A stale aggregator run computing waiting must not win.
	if _, err := NewStatusAggregator(store).Recompute(context.Background(), created.SessionID); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got := store.sessions[created.SessionID].Status; got != StatusReady {
		t.Fatalf("status = %s, want ready", got)
	}
}

func TestRecomputeWriteFailureReturnsStatus(t *testing.T) {
	store := newStubStore()
	created := newTestSession(store)
	store.failStatus = true
	status, err := NewStatusAggregator(store).Recompute(context.Background(), created.SessionID)
	if err == nil {
		t.Fatalf("expected error")
	}
	if status != StatusWaiting {
		t.Fatalf("status = %s, want waiting", status)
	}
}

func TestReconcile(t *testing.T) {
	store := newStubStore()
	created := newTestSession(store)
	agg := NewStatusAggregator(store)
	ctx := context.Background()

	sess, _ := store.GetSession(ctx, created.SessionID)
	got, err := agg.Reconcile(ctx, sess)
	if err != nil || got.Status != StatusInProgress {
		t.Fatalf("Reconcile = %s, %v; want in_progress", got.Status, err)
	}
	if len(store.statusWrites) != 0 {
		t.Fatalf("consistent session rewritten: %v", store.statusWrites)
	}

	for _, p := range store.participants {
		if p.Role == RoleA {
			now := time.Now()
			p.CompletedAt = &now
		}
	}
	store.failStatus = true
	got, err = agg.Reconcile(ctx, sess)
	if err != nil || got.Status != StatusWaiting {
		t.Fatalf("Reconcile = %s, %v; want waiting even when repair fails", got.Status, err)
	}
	if sess.Status != StatusInProgress {
		t.Fatalf("input session mutated")
	}
}
