package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/events"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/protocol"
)

type Msg interface{ isSessionMsg() }

type Join struct {
	ClientID string
	UserID   string
	Outbox   chan protocol.Message // where this client receives frames
}

type Leave struct{ ClientID string }

// Inbound is a frame received from a client (or the AI driver).
type Inbound struct {
	Msg protocol.Message
}

// Complete ends the duel. Sent by the submit path or the AI driver; a
// plain test run never completes a duel.
type Complete struct {
	WinnerID string
	Results  map[string]duel.TestResult
}

type Shutdown struct{}

type GetView struct {
	Reply chan View
}

func (Join) isSessionMsg()     {}
func (Leave) isSessionMsg()    {}
func (Inbound) isSessionMsg()  {}
func (Complete) isSessionMsg() {}
func (Shutdown) isSessionMsg() {}
func (GetView) isSessionMsg()  {}

// View reflects internal state without data races; test-only plus the
// REST fetch path.
type View struct {
	Version    int
	NumClients int
	State      duel.State
}

// Session owns one duel's live state. All access goes through the inbox.
type Session struct {
	inbox   chan Msg
	state   duel.State
	version int
	clients map[string]chan protocol.Message
	pub     events.Publisher
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	// onDone fires once after the duel completes and the final duel_end
	// broadcast is queued; the hub uses it to drop the session.
	onDone func(duelID string)
}

func New(parent context.Context, d duel.Duel, pub events.Publisher, log *zap.Logger, onDone func(duelID string)) *Session {
	ctx, cancel := context.WithCancel(parent)
	st, err := duel.Apply(duel.NewState(), duel.DuelStarted{Duel: d})
	if err != nil {
		// DuelStarted is always applicable to a fresh state.
		panic(err)
	}

	s := &Session{
		inbox:   make(chan Msg, 64),
		state:   st,
		clients: make(map[string]chan protocol.Message),
		pub:     pub,
		log:     log.With(zap.String("duel_id", d.ID)),
		ctx:     ctx,
		cancel:  cancel,
		onDone:  onDone,
	}
	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				// A joiner (or reconnecting client) gets the full
				// snapshot; lost in-flight frames are not replayed.
				select {
				case msg.Outbox <- protocol.NewDuelStart(*s.state.Duel):
					s.clients[msg.ClientID] = msg.Outbox
				default:
					close(msg.Outbox)
				}

			case Leave:
				delete(s.clients, msg.ClientID)

			case Inbound:
				s.handleInbound(msg.Msg)

			case Complete:
				s.complete(msg)

			case GetView:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					State:      s.state,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleInbound(m protocol.Message) {
	if s.state.Duel != nil && s.state.Duel.Status == duel.StatusCompleted {
		s.log.Debug("frame after completion dropped", zap.String("type", string(m.Type)))
		return
	}

	ev, err := m.Event()
	if err != nil {
		s.log.Warn("bad frame", zap.String("type", string(m.Type)), zap.Error(err))
		return
	}
	if ev == nil {
		return // ping/pong/error, nothing to fold
	}

	next, err := duel.Apply(s.state, ev)
	if err != nil {
		s.log.Warn("reducer rejected frame", zap.Error(err))
		return
	}
	s.state = next
	s.version++
	s.pub.Publish(s.duelID(), m)
	s.broadcast(m)
}

func (s *Session) complete(msg Complete) {
	if s.state.Duel == nil || s.state.Duel.Status == duel.StatusCompleted {
		return
	}
	finished := time.Now().UTC()
	next, err := duel.Apply(s.state, duel.DuelEnded{
		WinnerID:   msg.WinnerID,
		Results:    msg.Results,
		FinishedAt: finished,
	})
	if err != nil {
		s.log.Error("complete duel", zap.Error(err))
		return
	}
	s.state = next
	s.version++

	end := protocol.NewDuelEnd(msg.WinnerID, msg.Results, finished)
	s.pub.Publish(s.duelID(), end)
	s.broadcast(end)
	s.log.Info("duel completed", zap.String("winner", msg.WinnerID))

	// The duel is over: tell the owner and wind the actor down. Clients
	// still drain the buffered duel_end before their outboxes close.
	if s.onDone != nil {
		s.onDone(s.duelID())
	}
	s.cancel()
}

func (s *Session) broadcast(m protocol.Message) {
	for id, ch := range s.clients {
		select {
		case ch <- m:
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}

func (s *Session) duelID() string {
	if s.state.Duel == nil {
		return ""
	}
	return s.state.Duel.ID
}
