package ws

import "time"

// ConnInfo is the identity attached to a websocket connection for audit
// events and metrics. UserID is zero until the connection authenticates.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
