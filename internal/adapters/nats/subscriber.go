package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	instance string
	subs     []*nats.Subscription
}

// NewSubscriber creates a subscriber. Every API instance needs its own durable consumer
// so that each one sees every catalogue update; instance names it.
func NewSubscriber(url, instance string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, instance: sanitizeToken(instance)}, nil
}

// SubscribeZonesUpdated calls handler for every zones.updated event. Failed handlers
// are redelivered up to three times.
func (s *Subscriber) SubscribeZonesUpdated(ctx context.Context, handler func(ctx context.Context, zoneCount int) error) error {
	opts := []nats.SubOpt{
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.DeliverNew(),
	}
	if s.instance != "" {
		opts = append(opts, nats.Durable("zones-reload-"+s.instance))
	}

	sub, err := s.js.Subscribe(SubjectZonesUpdated, func(msg *nats.Msg) {
		var ev ZonesUpdated
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping malformed zones.updated event", "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, ev.ZoneCount); err != nil {
			slog.Error("zones.updated handler failed", "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, opts...)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
