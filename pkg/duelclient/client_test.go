package duelclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monlaf-sfk/battle-stack-sub001/pkg/codestore"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/protocol"
)

func testDuel() duel.Duel {
	return duel.Duel{
		ID:        "d1",
		ProblemID: "p1",
		Mode:      duel.ModePvP,
		Status:    duel.StatusInProgress,
		Participants: []duel.Participant{
			{UserID: "u1", Language: "python"},
			{UserID: "u2", Language: "python"},
		},
	}
}

// fakeServer accepts duel websockets and hands each connection to script.
type fakeServer struct {
	*httptest.Server
	accepts atomic.Int32
}

func newFakeServer(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		fs.accepts.Add(1)
		script(r.Context(), conn)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, m protocol.Message) {
	t.Helper()
	payload, err := m.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

type statusLog struct {
	mu  sync.Mutex
	log []duel.ConnStatus
}

func (s *statusLog) add(st duel.ConnStatus) {
	s.mu.Lock()
	s.log = append(s.log, st)
	s.mu.Unlock()
}

func (s *statusLog) last() duel.ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.log) == 0 {
		return ""
	}
	return s.log[len(s.log)-1]
}

func (s *statusLog) count(st duel.ConnStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.log {
		if v == st {
			n++
		}
	}
	return n
}

func fastOptions(base string) Options {
	return Options{
		BaseURL:       base,
		PingInterval:  time.Hour, // tests that care set their own
		ReconnectBase: 5 * time.Millisecond,
		ReconnectCap:  20 * time.Millisecond,
		MaxReconnects: 3,
		Debounce:      10 * time.Millisecond,
	}
}

func TestClient_ConnectAppliesSnapshot(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		// hold the socket open until the client goes away
		_, _, _ = conn.Read(ctx)
	})

	opts := fastOptions(srv.URL)
	statuses := &statusLog{}
	opts.OnStatus = statuses.add

	c := New("d1", "u1", opts)
	c.Connect()
	defer c.Close()

	require.Eventually(t, func() bool {
		st := c.State()
		return st.Duel != nil && st.Duel.ID == "d1"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, duel.ConnConnected, c.Status())
	assert.GreaterOrEqual(t, statuses.count(duel.ConnConnecting), 1)
}

func TestClient_CodeUpdateLastWriteWins(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		writeFrame(ctx, t, conn, protocol.NewCodeUpdate("u2", "a", "python"))
		writeFrame(ctx, t, conn, protocol.NewCodeUpdate("u2", "b", "python"))
		_, _, _ = conn.Read(ctx)
	})

	c := New("d1", "u1", fastOptions(srv.URL))
	c.Connect()
	defer c.Close()

	require.Eventually(t, func() bool {
		st := c.State()
		return st.Duel != nil && st.Duel.Participant("u2").Code == "b"
	}, time.Second, 5*time.Millisecond)
}

func TestClient_DuelEndClearsCachedCode(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		<-release
		writeFrame(ctx, t, conn, protocol.NewDuelEnd("u2", map[string]duel.TestResult{
			"u2": {Passed: 5, Total: 5},
		}, time.Now().UTC()))
		_ = conn.Close(websocket.StatusCode(protocol.CloseDuelOver), "duel over")
	})

	store := codestore.NewMemory()
	store.Set(codestore.Key("d1", "python"), "draft")
	store.Set(codestore.OpponentKey("d1"), "their draft")
	store.Set(codestore.Key("other", "python"), "keep")

	opts := fastOptions(srv.URL)
	opts.Store = store
	statuses := &statusLog{}
	opts.OnStatus = statuses.add

	c := New("d1", "u1", opts)
	c.Connect()
	defer c.Close()

	require.Eventually(t, func() bool {
		return c.Status() == duel.ConnConnected
	}, time.Second, 5*time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		st := c.State()
		return st.Duel != nil && st.Duel.Status == duel.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(store.Keys("duel_d1_")) == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := store.Get(codestore.Key("other", "python"))
	assert.True(t, ok, "other duels' drafts must survive")

	// Close code 4000 is terminal: no reconnect may happen.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepts.Load())
	assert.Equal(t, duel.ConnDisconnected, c.Status())
}

func TestClient_NormalCloseDoesNotReconnect(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	})

	c := New("d1", "u1", fastOptions(srv.URL))
	c.Connect()
	defer c.Close()

	require.Eventually(t, func() bool {
		return c.Status() == duel.ConnDisconnected && srv.accepts.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepts.Load())
}

func TestClient_ReconnectBudgetThenError(t *testing.T) {
	// A server that is already down: every dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	opts := fastOptions(url)
	statuses := &statusLog{}
	opts.OnStatus = statuses.add

	c := New("d1", "u1", opts)
	c.Connect()
	defer c.Close()

	require.Eventually(t, func() bool {
		return statuses.last() == duel.ConnError
	}, 2*time.Second, 5*time.Millisecond)

	// Initial dial plus at most 3 retries.
	attempts := statuses.count(duel.ConnConnecting)
	assert.LessOrEqual(t, attempts, 4)
	assert.GreaterOrEqual(t, attempts, 2)

	// No further attempts after the budget is spent.
	before := statuses.count(duel.ConnConnecting)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, statuses.count(duel.ConnConnecting))
}

func TestClient_ReconnectBudgetSpansOutages(t *testing.T) {
	// Every connection dies abnormally, so each reconnect succeeds and
	// then burns another attempt. The budget never refills: one initial
	// connect plus three retries, then the client gives up for good.
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		_ = conn.Close(websocket.StatusInternalError, "crash")
	})

	opts := fastOptions(srv.URL)
	statuses := &statusLog{}
	opts.OnStatus = statuses.add

	c := New("d1", "u1", opts)
	c.Connect()
	defer c.Close()

	require.Eventually(t, func() bool {
		return statuses.last() == duel.ConnError
	}, 2*time.Second, 5*time.Millisecond)

	assert.LessOrEqual(t, srv.accepts.Load(), int32(4))

	before := srv.accepts.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, srv.accepts.Load())
}

func TestClient_AbnormalCloseReconnects(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		_ = conn.Close(websocket.StatusInternalError, "crash")
	})

	c := New("d1", "u1", fastOptions(srv.URL))
	c.Connect()
	defer c.Close()

	require.Eventually(t, func() bool {
		return srv.accepts.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClient_SendsPeriodicPing(t *testing.T) {
	pings := make(chan protocol.Message, 16)
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			m, err := protocol.Decode(data)
			if err == nil && m.Type == protocol.KindPing {
				pings <- m
			}
		}
	})

	opts := fastOptions(srv.URL)
	opts.PingInterval = 10 * time.Millisecond

	c := New("d1", "u1", opts)
	c.Connect()
	defer c.Close()

	select {
	case m := <-pings:
		assert.Equal(t, "u1", m.UserID)
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received a ping")
	}
}

func TestClient_SendCodeReachesServerAndCachesDraft(t *testing.T) {
	frames := make(chan protocol.Message, 16)
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if m, err := protocol.Decode(data); err == nil {
				frames <- m
			}
		}
	})

	store := codestore.NewMemory()
	opts := fastOptions(srv.URL)
	opts.Store = store

	c := New("d1", "u1", opts)
	c.Connect()
	defer c.Close()

	require.Eventually(t, func() bool {
		return c.Status() == duel.ConnConnected
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.SendCode(`print("hi")`, "python"))

	select {
	case m := <-frames:
		assert.Equal(t, protocol.KindCodeUpdate, m.Type)
		assert.Equal(t, "u1", m.UserID)
	case <-time.After(time.Second):
		t.Fatalf("server never received the code update")
	}

	require.Eventually(t, func() bool {
		v, ok := c.Draft("python")
		return ok && v == `print("hi")`
	}, time.Second, 5*time.Millisecond)
}

func TestClient_MalformedFrameIsDropped(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
		writeFrame(ctx, t, conn, protocol.NewCodeUpdate("u2", "after", "python"))
		_, _, _ = conn.Read(ctx)
	})

	c := New("d1", "u1", fastOptions(srv.URL))
	c.Connect()
	defer c.Close()

	// The bad frame is swallowed; the stream keeps flowing.
	require.Eventually(t, func() bool {
		st := c.State()
		return st.Duel != nil && st.Duel.Participant("u2").Code == "after"
	}, time.Second, 5*time.Millisecond)
}

func TestClient_CloseIsIdempotentAndStopsEverything(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		writeFrame(ctx, t, conn, protocol.NewDuelStart(testDuel()))
		_, _, _ = conn.Read(ctx)
	})

	c := New("d1", "u1", fastOptions(srv.URL))
	c.Connect()

	require.Eventually(t, func() bool {
		return c.Status() == duel.ConnConnected
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Close()
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close hung")
	}

	if err := c.SendCode("x", "python"); err == nil {
		t.Fatalf("send after close must fail")
	}
}
