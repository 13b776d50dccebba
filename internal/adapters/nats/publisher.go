package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// Subjects used by the location service.
const (
	SubjectLocationPrefix = "pourzone.location."
	SubjectZonesUpdated   = "pourzone.zones.updated"
)

// ZonesUpdated is the payload of SubjectZonesUpdated.
type ZonesUpdated struct {
	ZoneCount   int       `json:"zone_count"`
	PublishedAt time.Time `json:"published_at"`
}

// Streams returns the JetStream streams the service relies on.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:              "LOCATION_STATE",
			Subjects:          []string{SubjectLocationPrefix + ">"},
			Retention:         nats.LimitsPolicy,
			MaxAge:            15 * time.Minute,
			MaxMsgsPerSubject: 1,
			Storage:           nats.MemoryStorage,
		},
		{
			Name:      "ZONE_EVENTS",
			Subjects:  []string{"pourzone.zones.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS, enables JetStream and ensures the streams exist.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range Streams() {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishLocationState publishes a session snapshot on pourzone.location.<session>.
// Only the latest snapshot per session is retained.
func (p *Publisher) PublishLocationState(ctx context.Context, snap *domain.LocationSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(LocationSubject(snap.SessionID), data, nats.Context(ctx))
	return err
}

// PublishZonesUpdated announces a freshly synced zone catalogue.
func (p *Publisher) PublishZonesUpdated(ctx context.Context, zoneCount int) error {
	data, err := json.Marshal(ZonesUpdated{ZoneCount: zoneCount, PublishedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectZonesUpdated, data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection, for health checks and relays.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// LocationSubject is the subject carrying a session's snapshots.
func LocationSubject(sessionID string) string {
	return SubjectLocationPrefix + sanitizeToken(sessionID)
}

// sanitizeToken keeps a session id usable as a single subject token.
func sanitizeToken(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch c {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			b[i] = '_'
		}
	}
	return string(b)
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("pourzone"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
