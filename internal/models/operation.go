package models

import "time"

// Operation kinds. Only destructive bulk actions are recorded; forward
// status transitions cannot be undone without breaking monotonicity.
const (
	OpBulkDelete = "bulk_delete"
)

// Operation is an ephemeral record of a bulk/destructive action. It holds
// the prior-state snapshot of each affected message and an opaque undo
// token. It is consumed by at most one undo call and expires after a short
// window; expiry is checked lazily at undo time.
type Operation struct {
	ID        int64        `db:"id" json:"id"`
	Token     string       `db:"token" json:"-"`
	ActorID   int64        `db:"actor_id" json:"actor_id"`
	ThreadID  int64        `db:"thread_id" json:"thread_id"`
	Kind      string       `db:"kind" json:"kind"`
	Snapshots SnapshotList `db:"snapshots" json:"snapshots"`
	Consumed  bool         `db:"consumed" json:"consumed"`
	ExpiresAt time.Time    `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
