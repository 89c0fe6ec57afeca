package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	flag "github.com/spf13/pflag"

	"github.com/vovakirdan/collab-relay/internal/core"
	"github.com/vovakirdan/collab-relay/internal/proto"
)

// ws_smoke connects two identities to a running relay, joins both to a
// workspace room and checks that an emitted task-moved reaches only the peer.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type peer struct {
	name string
	conn *websocket.Conn
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	sender := flag.String("sender", "smoke-a", "identity that emits")
	receiver := flag.String("receiver", "smoke-b", "identity that listens")
	senderToken := flag.String("sender-token", "dev", "token for the sender (JWT when jwt_required)")
	receiverToken := flag.String("receiver-token", "dev", "token for the receiver")
	workspace := flag.String("workspace", "smoke", "workspace id")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := connect(ctx, *addr, *sender, *senderToken)
	if err != nil {
		return err
	}
	defer a.conn.Close(websocket.StatusNormalClosure, "bye")

	b, err := connect(ctx, *addr, *receiver, *receiverToken)
	if err != nil {
		return err
	}
	defer b.conn.Close(websocket.StatusNormalClosure, "bye")

	for _, p := range []*peer{a, b} {
		if err := send(ctx, p, core.EventJoinWorkspace, *workspace); err != nil {
			return err
		}
	}
	// Give the hub time to process b's join before a emits.
	time.Sleep(200 * time.Millisecond)

	move := map[string]string{
		"workspaceId":  *workspace,
		"taskId":       fmt.Sprintf("smoke-%d", time.Now().UnixNano()),
		"sourceColumn": "todo",
		"targetColumn": "done",
	}
	if err := send(ctx, a, core.EventTaskMoved, move); err != nil {
		return err
	}

	out, err := await(ctx, b, core.EventTaskMoved)
	if err != nil {
		return err
	}
	fmt.Printf("%s received %s: %s\n", b.name, out.Event, out.Data)
	return nil
}

func connect(ctx context.Context, addr, userID, token string) (*peer, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", userID, err)
	}
	p := &peer{name: userID, conn: conn}

	if err := send(ctx, p, proto.InboundTypeHello, proto.HelloData{UserID: userID, Token: token, Protocol: proto.ProtocolVersion}); err != nil {
		return nil, err
	}
	ready, err := await(ctx, p, core.EventReady)
	if err != nil {
		return nil, err
	}
	fmt.Printf("%s ready: %s\n", userID, ready.Data)
	return p, nil
}

func send(ctx context.Context, p *peer, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	if err := wsjson.Write(ctx, p.conn, proto.Inbound{Type: event, Data: payload}); err != nil {
		return fmt.Errorf("send %s as %s: %w", event, p.name, err)
	}
	return nil
}

func await(ctx context.Context, p *peer, event string) (*proto.Outbound, error) {
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, p.conn, &out); err != nil {
			return nil, fmt.Errorf("%s waiting for %s: %w", p.name, event, err)
		}
		if out.Type == proto.OutboundTypeError && out.Error != nil {
			return nil, fmt.Errorf("%s got error %s: %s", p.name, out.Error.Code, out.Error.Msg)
		}
		if out.Event == event {
			return &out, nil
		}
	}
}
