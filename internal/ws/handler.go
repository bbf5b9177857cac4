package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/observability"
	"messaging-service/internal/service"
)

// Handler upgrades HTTP requests to websocket connections.
type Handler struct {
	hub      *Hub
	svc      *service.Service
	verifier auth.TokenVerifier
}

// NewHandler constructs a websocket Handler.
func NewHandler(hub *Hub, svc *service.Service, verifier auth.TokenVerifier) *Handler {
	return &Handler{hub: hub, svc: svc, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts the client pumps. A token
// supplied at upgrade time authenticates the connection immediately;
// otherwise the client has one auth frame to identify itself.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var userID int64
	if token := bearerToken(c.Request); token != "" {
		id, err := h.verifier.Verify(ctx, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID = id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	publishConnEvent(ctx, "ws_connect", info, 0, "")

	client := newClient(h.hub, conn, h.svc, h.verifier, info)
	client.start()
}
