package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pourzone/internal/adapters/device"
	natsadapter "github.com/samirrijal/pourzone/internal/adapters/nats"
	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/usecases"
	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

// Client actions besides the device position frames.
const (
	actionLocate      = "locate"
	actionSetAddress  = "set_address"
	actionRefresh     = "refresh"
	actionSelectStore = "select_store"
)

// wsFrame is any frame a client sends: a device reply or an action.
type wsFrame struct {
	device.Reply
	Address string                  `json:"address,omitempty"`
	StoreID string                  `json:"store_id,omitempty"`
	Options *domain.PositionOptions `json:"options,omitempty"`
}

type wsOut struct {
	Type     string                   `json:"type"`
	Snapshot *domain.LocationSnapshot `json:"snapshot,omitempty"`
	Data     json.RawMessage          `json:"data,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// WebSocketHandler serves /ws?session=ID. The socket carries the session's location
// snapshots and zone catalogue updates out, and device positions and actions in.
// Position requests for the session are routed to the most recently attached socket.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		id := c.Query("session")
		if id == "" || len(id) > 128 {
			_ = c.WriteJSON(wsOut{Type: "error", Error: "session query parameter is required"})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		log := slog.Default().With("session", id, "remote", c.RemoteAddr().String())

		sess, err := deps.Locations.Session(ctx, id)
		if err != nil {
			_ = c.WriteJSON(wsOut{Type: "error", Error: err.Error()})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		log.Info("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		if deps.Bridge != nil {
			detach := deps.Bridge.Attach(id, func(v any) error { return writeJSON(v) })
			defer detach()
		}

		snaps, stopWatch := sess.Watch()
		defer stopWatch()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case snap, ok := <-snaps:
					if !ok {
						return
					}
					if err := writeJSON(wsOut{Type: "snapshot", Snapshot: &snap}); err != nil {
						return
					}
				}
			}
		}()

		if deps.NATS != nil {
			sub, err := deps.NATS.Subscribe(natsadapter.SubjectZonesUpdated, func(msg *nats.Msg) {
				_ = writeJSON(wsOut{Type: "zones_updated", Data: json.RawMessage(msg.Data)})
			})
			if err != nil {
				log.Warn("ws zones subscribe failed", "error", err)
			} else {
				defer func() { _ = sub.Unsubscribe() }()
			}
		}

		// Keep-alive ping
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var f wsFrame
			if err := json.Unmarshal(raw, &f); err != nil {
				_ = writeJSON(wsOut{Type: "error", Error: "invalid JSON"})
				continue
			}
			if msg := handleFrame(ctx, deps, sess, f); msg != "" {
				_ = writeJSON(wsOut{Type: "error", Error: msg})
			}
		}

		log.Info("ws client disconnected")
	}
}

// handleFrame dispatches one client frame. Actions run in their own goroutine: a locate
// waits for a position frame that this socket's read loop must still deliver.
func handleFrame(ctx context.Context, deps *Dependencies, sess *usecases.Session, f wsFrame) string {
	run := func(op string, fn func() error) {
		go func() {
			if err := fn(); err != nil {
				slog.Debug("ws action failed", "session", sess.ID(), "action", op, "error", err)
			}
		}()
	}

	switch f.Type {
	case device.FramePosition, device.FramePositionError:
		if f.RequestID != "" && deps.Bridge != nil {
			err := deps.Bridge.Deliver(sess.ID(), f.Reply)
			if err == nil {
				return ""
			}
			if !errors.Is(err, device.ErrNoPendingRequest) {
				return err.Error()
			}
		}
		if f.Type == device.FramePositionError {
			return ""
		}
		// unsolicited fix, e.g. from watchPosition
		pt := domain.Coordinate{Lat: f.Lat, Lng: f.Lng, Accuracy: f.Accuracy, Timestamp: f.Timestamp}
		if !pt.Valid() {
			return "invalid coordinate"
		}
		run(f.Type, func() error {
			_, err := sess.SetCoordinate(ctx, pt)
			return err
		})

	case actionLocate:
		opts := usecases.DefaultPositionOptions()
		if f.Options != nil {
			opts = *f.Options
		}
		run(f.Type, func() error {
			_, err := sess.Locate(ctx, opts)
			return err
		})

	case actionSetAddress:
		if f.Address == "" {
			return "address is required"
		}
		run(f.Type, func() error {
			_, err := sess.SetAddress(ctx, f.Address)
			return err
		})

	case actionRefresh:
		run(f.Type, func() error {
			_, err := sess.Refresh(ctx)
			return err
		})

	case actionSelectStore:
		if _, err := sess.SelectStore(ctx, f.StoreID); err != nil {
			return err.Error()
		}

	default:
		return "unknown frame type: " + f.Type
	}
	return ""
}
