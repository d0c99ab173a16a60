package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/events"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/session"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Duel  duel.Duel
	Reply chan *session.Session
}

type GetSession struct {
	DuelID string
	Reply  chan *session.Session
}

type EnsureSession struct {
	Duel  duel.Duel // only used if creation happens
	Reply chan *session.Session
}

type RemoveSession struct {
	DuelID string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Hub owns every live duel session. All access goes through the inbox so
// the registry needs no locking.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	pub      events.Publisher
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, pub events.Publisher, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		pub:      pub,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if s := h.sessions[msg.Duel.ID]; s != nil {
					msg.Reply <- s
					break
				}
				s := session.New(h.ctx, msg.Duel, h.pub, h.log, h.removeWhenDone)
				h.sessions[msg.Duel.ID] = s
				msg.Reply <- s

			case GetSession:
				msg.Reply <- h.sessions[msg.DuelID] // may be nil

			case EnsureSession:
				if s := h.sessions[msg.Duel.ID]; s != nil {
					msg.Reply <- s
					break
				}
				s := session.New(h.ctx, msg.Duel, h.pub, h.log, h.removeWhenDone)
				h.sessions[msg.Duel.ID] = s
				msg.Reply <- s

			case RemoveSession:
				delete(h.sessions, msg.DuelID)

			case ShutdownHub:
				for _, s := range h.sessions {
					s.Inbox() <- session.Shutdown{}
				}
				clear(h.sessions)
				h.cancel()
			}
		}
	}
}

// removeWhenDone is handed to each session so a completed duel does not
// stay registered forever. It runs on the session goroutine, so it goes
// through the inbox like everyone else.
func (h *Hub) removeWhenDone(duelID string) {
	select {
	case h.inbox <- RemoveSession{DuelID: duelID}:
	case <-h.ctx.Done():
	}
}

// Session is a convenience wrapper over the GetSession message.
func (h *Hub) Session(duelID string) *session.Session {
	reply := make(chan *session.Session, 1)
	h.inbox <- GetSession{DuelID: duelID, Reply: reply}
	return <-reply
}
