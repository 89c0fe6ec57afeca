package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/auth"
	"github.com/vovakirdan/collab-relay/internal/config"
	"github.com/vovakirdan/collab-relay/internal/core"
	"github.com/vovakirdan/collab-relay/internal/proto"
	"github.com/vovakirdan/collab-relay/internal/service/messages"
	"github.com/vovakirdan/collab-relay/internal/service/notifications"
	"github.com/vovakirdan/collab-relay/internal/store/sqlite"
)

const testSecret = "testsecret"

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	auth  *auth.Service
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	return cfg
}

func startTestServer(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.New(nil)

	hub := core.NewHub(st, core.WithLogger(&disabledLogger))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	authSvc := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}, cfg.JWTRequired)

	server := NewServer(Deps{
		Hub:           hub,
		Auth:          authSvc,
		Notifications: notifications.New(st),
		Messages:      messages.New(st, hub, &disabledLogger),
		Presence:      st,
	}, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, auth: authSvc}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := e.auth.IssueToken(userID, strings.ToUpper(userID[:1])+userID[1:])
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendHello(t *testing.T, ctx context.Context, conn *websocket.Conn, hello proto.HelloData) {
	t.Helper()

	payload, _ := json.Marshal(hello)
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeHello, Data: payload}); err != nil {
		t.Fatalf("send hello: %v", err)
	}
}

func sendEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event, data string) {
	t.Helper()

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: event, Data: json.RawMessage(data)}); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

// readUntil reads frames until one matches the event name or the context expires.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) proto.Outbound {
	t.Helper()

	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == event {
			return out
		}
	}
}

// connectAs dials, authenticates and waits for the ready event.
func connectAs(t *testing.T, ctx context.Context, env *testEnv, userID string) *websocket.Conn {
	t.Helper()

	conn := dial(t, ctx, env.wsURL())
	sendHello(t, ctx, conn, proto.HelloData{UserID: userID, Token: "dev-token", Protocol: proto.ProtocolVersion})
	readUntil(t, ctx, conn, core.EventReady)
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
