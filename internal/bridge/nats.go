// Package bridge fans room emissions out across relay instances over NATS.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/core"
)

const defaultPrefix = "collab"

// NATS publishes local emissions and delivers foreign ones.
type NATS struct {
	nc     *nats.Conn
	prefix string
	node   string
	log    *zerolog.Logger
}

// Connect dials the NATS server at url.
func Connect(url, prefix string, logger *zerolog.Logger) (*NATS, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	node := uuid.NewString()

	nc, err := nats.Connect(url,
		nats.Name("collab-relay-"+node[:8]),
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATS{nc: nc, prefix: prefix, node: node, log: logger}, nil
}

// Node identifies this instance in published envelopes.
func (b *NATS) Node() string {
	return b.node
}

// Publish implements core.Bridge. The NATS client buffers, so this does not block.
func (b *NATS) Publish(env core.Envelope) error {
	env.Origin = b.node
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.nc.Publish(b.subject(env.Room), data); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

// Subscribe starts delivering envelopes from other instances to sink.
// The returned function stops delivery.
func (b *NATS) Subscribe(sink func(core.Envelope) error) (func(), error) {
	handler := func(msg *nats.Msg) {
		var env core.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("malformed bridge envelope")
			return
		}
		if env.Origin == b.node {
			return
		}
		if err := sink(env); err != nil {
			b.log.Debug().Err(err).Str("room", env.Room).Msg("bridge envelope not delivered")
		}
	}

	rooms, err := b.nc.Subscribe(b.prefix+".room.>", handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe rooms: %w", err)
	}
	broadcast, err := b.nc.Subscribe(b.prefix+".broadcast", handler)
	if err != nil {
		_ = rooms.Unsubscribe()
		return nil, fmt.Errorf("subscribe broadcast: %w", err)
	}
	if err := b.nc.Flush(); err != nil {
		_ = rooms.Unsubscribe()
		_ = broadcast.Unsubscribe()
		return nil, fmt.Errorf("flush subscriptions: %w", err)
	}

	return func() {
		_ = rooms.Unsubscribe()
		_ = broadcast.Unsubscribe()
	}, nil
}

// Run delivers foreign envelopes to sink until ctx is canceled.
func (b *NATS) Run(ctx context.Context, sink func(core.Envelope) error) error {
	stop, err := b.Subscribe(sink)
	if err != nil {
		return err
	}
	b.log.Info().Str("node", b.node).Str("prefix", b.prefix).Msg("bridge subscribed")
	<-ctx.Done()
	stop()
	return nil
}

// Close drains pending publishes and closes the connection.
func (b *NATS) Close() error {
	return b.nc.Drain()
}

func (b *NATS) subject(room string) string {
	if room == "" {
		return b.prefix + ".broadcast"
	}
	return b.prefix + ".room." + subjectToken(room)
}

// subjectToken replaces characters NATS reserves in subject tokens.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

var _ core.Bridge = (*NATS)(nil)
