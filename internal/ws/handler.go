package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/hub"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/session"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/protocol"
)

// Options tune the per-connection plumbing. Zero values fall back to
// defaults.
type Options struct {
	// ClientBuffer is the outbox depth per connection; a client that
	// falls this far behind is dropped by the session.
	ClientBuffer int
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ClientBuffer <= 0 {
		o.ClientBuffer = 8
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	return o
}

// Handler serves GET /api/v1/duels/ws/{duelID}/{userID}. Exactly one
// websocket per (duel, user) pair on this connection; the session relays
// frames between both sides.
func Handler(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		duelID := chi.URLParam(r, "duelID")
		userID := chi.URLParam(r, "userID")
		if duelID == "" || userID == "" {
			http.Error(w, "missing duel or user id", http.StatusBadRequest)
			return
		}

		s := h.Session(duelID)
		if s == nil {
			http.Error(w, "duel not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan protocol.Message, opts.ClientBuffer)
		clientID := uuid.NewString()

		s.Inbox() <- session.Join{ClientID: clientID, UserID: userID, Outbox: out}
		defer func() { s.Inbox() <- session.Leave{ClientID: clientID} }()

		clog := log.With(zap.String("duel_id", duelID), zap.String("user_id", userID))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for m := range out {
				payload, err := m.Encode()
				if err != nil {
					clog.Error("encode frame", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, opts.WriteTimeout)
				werr := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if werr != nil {
					return
				}
				if m.Type == protocol.KindDuelEnd {
					// Terminal close code; the client must not reconnect.
					_ = conn.Close(websocket.StatusCode(protocol.CloseDuelOver), "duel over")
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway,
					websocket.StatusCode(protocol.CloseDuelOver):
					return
				}
				// Otherwise just exit (session.Leave in defer).
				return
			}

			m, err := protocol.Decode(data)
			if err != nil {
				clog.Debug("bad frame dropped", zap.Error(err))
				writeMsg(r.Context(), conn, protocol.NewError("bad_frame", err.Error()), opts.WriteTimeout)
				continue
			}

			if m.Type == protocol.KindPing {
				writeMsg(r.Context(), conn, protocol.NewPong(), opts.WriteTimeout)
				continue
			}

			// The sender identity comes from the URL, not the frame.
			m.UserID = userID
			s.Inbox() <- session.Inbound{Msg: m}
		}
	}
}

func writeMsg(ctx context.Context, conn *websocket.Conn, m protocol.Message, timeout time.Duration) {
	payload, err := m.Encode()
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
