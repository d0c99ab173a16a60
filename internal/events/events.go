package events

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/pkg/protocol"
)

// Publisher fans accepted duel frames out to interested consumers
// (replay, analytics). Publication is fire-and-forget: a failed publish
// never fails the duel.
type Publisher interface {
	Publish(duelID string, m protocol.Message)
}

// Nop is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, protocol.Message) {}

// NATS publishes each frame to the subject duels.<duelID>.
type NATS struct {
	conn *nats.Conn
	log  *zap.Logger
}

func Connect(url string, log *zap.Logger) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("battle-stack-realtime"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: nc, log: log}, nil
}

func (n *NATS) Publish(duelID string, m protocol.Message) {
	raw, err := m.Encode()
	if err != nil {
		n.log.Error("encode duel event", zap.Error(err))
		return
	}
	subject := fmt.Sprintf("duels.%s", duelID)
	if err := n.conn.Publish(subject, raw); err != nil {
		n.log.Error("publish duel event",
			zap.String("subject", subject), zap.Error(err))
	}
}

func (n *NATS) Close() {
	n.conn.Close()
}
