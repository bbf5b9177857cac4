package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrOperationExpired  = errors.New("operation expired or already consumed")
)

const operationColumns = `id, token, actor_id, thread_id, kind, snapshots, consumed, expires_at, created_at`

// OperationRepository persists undo records for bulk operations.
type OperationRepository interface {
	CreateOperation(ctx context.Context, op *models.Operation) error
	ConsumeOperation(ctx context.Context, operationID int64, token string, actorID int64, now time.Time) (models.Operation, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// OperationRepo is a sqlx implementation of OperationRepository.
type OperationRepo struct {
	db *sqlx.DB
}

// NewOperationRepo constructs an OperationRepo.
func NewOperationRepo(db *sqlx.DB) *OperationRepo {
	return &OperationRepo{db: db}
}

// CreateOperation stores the operation record with its prior-state
// snapshots.
func (r *OperationRepo) CreateOperation(ctx context.Context, op *models.Operation) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO operations (token, actor_id, thread_id, kind, snapshots, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+operationColumns,
		op.Token, op.ActorID, op.ThreadID, op.Kind, op.Snapshots, op.ExpiresAt).
		StructScan(op)
}

// ConsumeOperation atomically marks the operation consumed and returns it.
// The single UPDATE guarantees at-most-once consumption under concurrent
// undo requests. Token or actor mismatch reports not-found rather than
// revealing whether the record exists.
func (r *OperationRepo) ConsumeOperation(ctx context.Context, operationID int64, token string, actorID int64, now time.Time) (models.Operation, error) {
	var op models.Operation
	err := r.db.QueryRowxContext(ctx,
		`UPDATE operations SET consumed = TRUE
         WHERE id=$1 AND token=$2 AND actor_id=$3 AND consumed = FALSE AND expires_at > $4
         RETURNING `+operationColumns,
		operationID, token, actorID, now).
		StructScan(&op)
	if err == nil {
		return op, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Operation{}, err
	}

	// Distinguish "gone" from "never yours": only an operation matching
	// token and actor may learn that it expired or was already used.
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM operations WHERE id=$1 AND token=$2 AND actor_id=$3)`,
		operationID, token, actorID); err != nil {
		return models.Operation{}, err
	}
	if exists {
		return models.Operation{}, ErrOperationExpired
	}
	return models.Operation{}, ErrOperationNotFound
}

// DeleteExpired purges stale operation records. Correctness does not
// depend on this running; expiry is enforced at consume time.
func (r *OperationRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM operations WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
