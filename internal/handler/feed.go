package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ridehail/internal/domain"
	"ridehail/internal/relay"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
)

// FeedHandler pushes ride change events to websocket clients. Events are
// hints: clients re-fetch the ride (or everything, on resync).
type FeedHandler struct {
	source   relay.Source
	options  []relay.StreamOption
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewFeedHandler creates a new FeedHandler. checkOrigin may be nil to allow
// every origin.
func NewFeedHandler(source relay.Source, checkOrigin func(*http.Request) bool, logger *slog.Logger, opts ...relay.StreamOption) *FeedHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandler{
		source:  source,
		options: append([]relay.StreamOption{relay.WithLogger(logger)}, opts...),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// FeedMatcher returns the events an actor may see: drivers watch the pending
// pool and their own rides, passengers their own rides, admins everything.
func FeedMatcher(a domain.Actor) relay.Matcher {
	switch a.Role {
	case domain.RoleAdmin:
		return relay.Filter{}
	case domain.RoleDriver:
		return relay.AnyOf{
			{Statuses: []domain.RideStatus{domain.RideStatusPending}},
			{DriverID: a.ID},
		}
	default:
		return relay.Filter{PassengerID: a.ID}
	}
}

// Stream handles GET /v1/rides/feed
func (h *FeedHandler) Stream(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "actor_id", a.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	stream := relay.Subscribe(h.source, FeedMatcher(a), h.options...)
	defer stream.Close()

	h.logger.Info("feed client connected", "actor_id", a.ID, "actor_role", a.Role)
	defer h.logger.Info("feed client disconnected", "actor_id", a.ID)

	go h.readPump(conn, cancel)
	go h.pingPump(ctx, conn)

	for {
		event, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, relay.ErrStreamClosed) {
				h.logger.Warn("feed stream failed", "actor_id", a.ID, "error", err)
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(feedWriteWait))
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug("feed write failed", "actor_id", a.ID, "error", err)
			return
		}
	}
}

// readPump discards client messages and cancels the feed once the client goes away.
func (h *FeedHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("feed client read failed", "error", err)
			}
			return
		}
	}
}

func (h *FeedHandler) pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		}
	}
}
