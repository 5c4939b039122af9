package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
	"storefront/pkg/contextx"
	"storefront/pkg/errcodes"
	"storefront/pkg/middlewarex"
)

// SessionRepository resolves session tokens issued by the auth service.
type SessionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSessionRepository builds a SessionRepository on db.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// VerifyToken resolves a session token to its owner. Unknown and expired
// tokens yield Unauthorized.
func (r *SessionRepository) VerifyToken(ctx context.Context, token string) (middlewarex.Principal, error) {
	query := `SELECT user_id, role FROM sessions WHERE token = $1 AND expires_at > $2`

	var row struct {
		UserID int64  `db:"user_id"`
		Role   string `db:"role"`
	}

	if err := r.db.GetContext(ctx, &row, query, token, r.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return middlewarex.Principal{}, domain.NewError(errcodes.Unauthorized, "session not found or expired")
		}
		return middlewarex.Principal{}, domain.WrapError(err, errcodes.InternalServerError, "failed to verify session")
	}

	return middlewarex.Principal{
		UserID: contextx.UserID(row.UserID),
		Role:   contextx.UserRole(row.Role),
	}, nil
}
