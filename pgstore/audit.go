package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	keyturn "github.com/keyturnlabs/keyturn"
)

// AuditLog is the PostgreSQL implementation of [keyturn.AuditLog]. Rows are
// insert-only; nothing in this package updates or deletes them.
type AuditLog struct {
	db DBTX
}

// NewAuditLog binds an audit log to db, which may be a *sql.DB or an open
// *sql.Tx.
func NewAuditLog(db DBTX) *AuditLog {
	return &AuditLog{db: db}
}

// Append inserts one audit row. Failures are reported, never swallowed.
func (l *AuditLog) Append(ctx context.Context, entry keyturn.AuditEntry) error {
	query :=
		`INSERT INTO audit_events (id, principal_id, event_kind, origin, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	_, err := l.db.ExecContext(ctx, query,
		uuid.NewString(), entry.PrincipalID, entry.EventKind, entry.Origin, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", keyturn.ErrStoreUnavailable, err)
	}

	return nil
}

// ListByPrincipal returns a principal's trail in insertion order, newest
// last, capped at limit rows.
func (l *AuditLog) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]keyturn.AuditEntry, error) {
	query :=
		`SELECT principal_id, event_kind, origin, user_agent, created_at FROM audit_events
		 WHERE principal_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 `

	rows, err := l.db.QueryContext(ctx, query, principalID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyturn.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var entries []keyturn.AuditEntry
	for rows.Next() {
		var entry keyturn.AuditEntry
		if err := rows.Scan(&entry.PrincipalID, &entry.EventKind, &entry.Origin, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", keyturn.ErrStoreUnavailable, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", keyturn.ErrStoreUnavailable, err)
	}

	return entries, nil
}
