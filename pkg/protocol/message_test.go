package protocol

import (
	"errors"
	"testing"

	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
)

func TestDecode_RejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"launch_missiles"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("want ErrUnknownKind, got %v", err)
	}
}

func TestDecode_RejectsBadJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("want ErrBadPayload, got %v", err)
	}
}

func TestEvent_CodeUpdateRoundTrip(t *testing.T) {
	raw, err := NewCodeUpdate("u1", "print(1)", "python").Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, err := m.Event()
	if err != nil {
		t.Fatalf("event: %v", err)
	}

	cu, ok := ev.(duel.CodeUpdated)
	if !ok {
		t.Fatalf("want CodeUpdated, got %T", ev)
	}
	if cu.UserID != "u1" || cu.Code != "print(1)" || cu.Language != "python" {
		t.Fatalf("unexpected event: %+v", cu)
	}
}

func TestEvent_DuelStartWithoutIDIsRejected(t *testing.T) {
	m := Message{Type: KindDuelStart, Data: []byte(`{"duel":{}}`)}
	if _, err := m.Event(); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("want ErrBadPayload, got %v", err)
	}
}

func TestEvent_MissingDataIsRejected(t *testing.T) {
	m := Message{Type: KindCodeUpdate, UserID: "u1"}
	if _, err := m.Event(); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("want ErrBadPayload, got %v", err)
	}
}

func TestEvent_PingCarriesNoEvent(t *testing.T) {
	ev, err := NewPing("u1").Event()
	if err != nil || ev != nil {
		t.Fatalf("ping should yield (nil, nil), got (%v, %v)", ev, err)
	}
}
