package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/events"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/session"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
)

func testDuel(id string) duel.Duel {
	return duel.Duel{
		ID:        id,
		ProblemID: "p1",
		Mode:      duel.ModePvP,
		Status:    duel.StatusPending,
		Participants: []duel.Participant{
			{UserID: "u1"}, {UserID: "u2"},
		},
	}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := NewHub(context.Background(), events.Nop{}, zap.NewNop())
	reply := make(chan *session.Session, 1)

	h.Inbox() <- CreateSession{Duel: testDuel("d1"), Reply: reply}
	s1 := <-reply

	h.Inbox() <- GetSession{DuelID: "d1", Reply: reply}
	s2 := <-reply

	if s1 == nil || s2 == nil || s1 != s2 {
		t.Fatalf("expected same session pointer")
	}
}

func TestHub_GetUnknownIsNil(t *testing.T) {
	h := NewHub(context.Background(), events.Nop{}, zap.NewNop())

	if s := h.Session("nope"); s != nil {
		t.Fatalf("expected nil session, got %v", s)
	}
}

func TestHub_EnsureIsIdempotent(t *testing.T) {
	h := NewHub(context.Background(), events.Nop{}, zap.NewNop())
	reply := make(chan *session.Session, 1)

	h.Inbox() <- EnsureSession{Duel: testDuel("d2"), Reply: reply}
	s1 := <-reply
	h.Inbox() <- EnsureSession{Duel: testDuel("d2"), Reply: reply}
	s2 := <-reply

	if s1 != s2 {
		t.Fatalf("ensure must reuse the existing session")
	}
}

func TestHub_CompletedDuelLeavesRegistry(t *testing.T) {
	h := NewHub(context.Background(), events.Nop{}, zap.NewNop())
	reply := make(chan *session.Session, 1)

	h.Inbox() <- CreateSession{Duel: testDuel("d4"), Reply: reply}
	s := <-reply

	s.Inbox() <- session.Complete{WinnerID: "u1"}

	deadline := time.After(time.Second)
	for h.Session("d4") != nil {
		select {
		case <-deadline:
			t.Fatalf("completed session was never removed from the hub")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHub_RemoveForgetsSession(t *testing.T) {
	h := NewHub(context.Background(), events.Nop{}, zap.NewNop())
	reply := make(chan *session.Session, 1)

	h.Inbox() <- CreateSession{Duel: testDuel("d3"), Reply: reply}
	<-reply

	h.Inbox() <- RemoveSession{DuelID: "d3"}
	if s := h.Session("d3"); s != nil {
		t.Fatalf("expected session removed")
	}
}
