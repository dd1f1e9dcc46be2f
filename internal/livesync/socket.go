package livesync

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxClientFrame  = 512
)

// Viewer is the authenticated user behind a socket.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// AdmitFor returns the predicate that only admits rows the viewer may observe.
func AdmitFor(viewer Viewer) Predicate {
	return func(change payloads.ChangeEvent) bool {
		return change.VisibleTo(viewer.UserID, viewer.Role)
	}
}

// ParseTables parses a comma separated table list. Empty input selects every
// synced table.
func ParseTables(raw string) ([]enums.OutboxAggregateType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return enums.SyncedTables(), nil
	}
	seen := make(map[enums.OutboxAggregateType]struct{})
	var tables []enums.OutboxAggregateType
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		table, err := enums.ParseOutboxAggregateType(part)
		if err != nil {
			return nil, pkgerrors.Validation("tables", "unknown table "+part)
		}
		if _, ok := seen[table]; ok {
			continue
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	if len(tables) == 0 {
		return nil, pkgerrors.Validation("tables", "at least one table is required")
	}
	return tables, nil
}

type frame struct {
	Type   string                      `json:"type"`
	Tables []enums.OutboxAggregateType `json:"tables,omitempty"`
	Change *Change                     `json:"change,omitempty"`
}

// Socket serves the change feed over WebSocket connections.
type Socket struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongWait     time.Duration
	logg         *logger.Logger
}

// NewSocket builds a WebSocket front for hub.
func NewSocket(hub *Hub, cfg config.LiveSyncConfig, logg *logger.Logger) *Socket {
	pongWait := cfg.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	ping := cfg.PingInterval
	if ping <= 0 || ping >= pongWait {
		ping = pongWait * 9 / 10
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Socket{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		pingInterval: ping,
		pongWait:     pongWait,
		logg:         logg,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.ToLower(strings.TrimSpace(origin))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(strings.TrimSpace(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve upgrades the request and streams changes for tables until the client
// disconnects. The upgrade error, if any, has already been written to w.
func (s *Socket) Serve(w http.ResponseWriter, r *http.Request, viewer Viewer, tables []enums.OutboxAggregateType) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":    viewer.UserID.String(),
		"actor_role": string(viewer.Role),
		"tables":     tables,
	})

	out := make(chan frame, s.hub.buffer)
	var forwarders sync.WaitGroup
	admit := AdmitFor(viewer)
	for _, table := range tables {
		sub, unsubscribe := s.hub.Subscribe(table, admit)
		defer unsubscribe()
		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			s.forward(ctx, logCtx, sub, out)
		}()
	}
	defer forwarders.Wait()
	defer cancel()

	s.logg.Info(logCtx, "live sync session opened")

	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.write(conn, frame{Type: "subscribed", Tables: tables}); err != nil {
		return nil
	}

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			s.logg.Info(logCtx, "live sync session closed")
			return nil
		case f := <-out:
			if err := s.write(conn, f); err != nil {
				s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "live sync write failed")
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// forward relays one subscription onto out. A lagged subscription becomes a
// resync frame telling the client to refetch the table.
func (s *Socket) forward(ctx, logCtx context.Context, sub *Subscription, out chan<- frame) {
	for {
		var f frame
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.C():
			if !ok {
				return
			}
			f = frame{Type: "change", Change: &change}
		case <-sub.Lagged():
			s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
				"table":   string(sub.Table()),
				"dropped": sub.Dropped(),
			}), "live sync subscriber lagged")
			f = frame{Type: "resync", Tables: []enums.OutboxAggregateType{sub.Table()}}
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Socket) write(conn *websocket.Conn, f frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
