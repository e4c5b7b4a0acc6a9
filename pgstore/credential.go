package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	keyturn "github.com/keyturnlabs/keyturn"
)

// CredentialStore is the PostgreSQL implementation of
// [keyturn.CredentialStore]. One row per (principal, kind) pair; the row
// holds only the PHC hash string, never a raw secret.
type CredentialStore struct {
	db DBTX
}

// NewCredentialStore binds a store to db, which may be a *sql.DB or an open
// *sql.Tx.
func NewCredentialStore(db DBTX) *CredentialStore {
	return &CredentialStore{db: db}
}

// Get fetches the stored credential for a principal and kind.
func (s *CredentialStore) Get(ctx context.Context, principalID string, kind keyturn.CredentialKind) (keyturn.Credential, error) {
	query :=
		`SELECT secret_hash, updated_at FROM credentials
		 WHERE principal_id = $1 AND kind = $2
		 `

	cred := keyturn.Credential{
		PrincipalID: principalID,
		Kind:        kind,
	}
	err := s.db.QueryRowContext(ctx, query, principalID, kind.String()).
		Scan(&cred.SecretHash, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return keyturn.Credential{}, keyturn.ErrPrincipalNotFound
		}
		return keyturn.Credential{}, fmt.Errorf("%w: %v", keyturn.ErrStoreUnavailable, err)
	}

	return cred, nil
}

// Replace swaps the stored hash for an existing (principal, kind) row.
// The row-level UPDATE serializes concurrent rotations for the same
// principal; a missing row is [keyturn.ErrPrincipalNotFound], never an
// implicit insert.
func (s *CredentialStore) Replace(ctx context.Context, principalID string, kind keyturn.CredentialKind, newHash string) error {
	query :=
		`UPDATE credentials SET secret_hash = $3, updated_at = $4
		 WHERE principal_id = $1 AND kind = $2
		 `

	result, err := s.db.ExecContext(ctx, query, principalID, kind.String(), newHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", keyturn.ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", keyturn.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return keyturn.ErrPrincipalNotFound
	}

	return nil
}

// Seed upserts a credential row. Principals are created out-of-band; this
// is the provisioning hook for registration flows and test fixtures.
func (s *CredentialStore) Seed(ctx context.Context, principalID string, kind keyturn.CredentialKind, hash string) error {
	query :=
		`INSERT INTO credentials (principal_id, kind, secret_hash, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (principal_id, kind)
		 DO UPDATE SET secret_hash = EXCLUDED.secret_hash, updated_at = EXCLUDED.updated_at
		 `

	if _, err := s.db.ExecContext(ctx, query, principalID, kind.String(), hash, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", keyturn.ErrStoreUnavailable, err)
	}

	return nil
}
