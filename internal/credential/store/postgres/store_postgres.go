package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"popai/internal/credential/models"
	"popai/pkg/domain"
	"popai/pkg/platform/sentinel"
)

// PostgresCredentialStore keeps the ledger in the credentials table. The
// owner column is UNIQUE, so the check and the insert collapse into one
// INSERT ... ON CONFLICT statement. A lost race still draws from the
// sequence, leaving a gap; numbers are never reused.
type PostgresCredentialStore struct {
	db       *sql.DB
	template models.Template
}

func New(db *sql.DB, template models.Template) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db, template: template}
}

const credentialColumns = `token_id, sequence, owner, name, description, verification_hash, issued_at`

const mintQuery = `
	WITH seq AS (SELECT nextval('credential_token_seq') AS n)
	INSERT INTO credentials (` + credentialColumns + `)
	SELECT $1::text || seq.n::text, seq.n, $2, $3, $4, $5, $6 FROM seq
	ON CONFLICT (owner) DO NOTHING
	RETURNING ` + credentialColumns

// MintOrGet inserts owner's credential unless one exists, then returns the
// stored row. minted reports whether this call inserted it.
func (s *PostgresCredentialStore) MintOrGet(ctx context.Context, owner domain.Identity, verificationHash string, issuedAt time.Time) (*models.Credential, bool, error) {
	row := s.db.QueryRowContext(ctx, mintQuery,
		s.template.TokenPrefix,
		owner.String(),
		s.template.Name,
		s.template.Description,
		verificationHash,
		issuedAt.UTC(),
	)
	c, err := scanCredential(row)
	switch {
	case err == nil:
		return c, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// Another caller owns the row; it is committed by the time ON CONFLICT
		// skipped ours.
		existing, err := s.FindByOwner(ctx, owner)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("mint credential: %w", err)
	}
}

func (s *PostgresCredentialStore) FindByTokenID(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE token_id = $1`, tokenID.String())
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s: %w", tokenID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find credential by token: %w", err)
	}
	return c, nil
}

func (s *PostgresCredentialStore) FindByOwner(ctx context.Context, owner domain.Identity) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE owner = $1`, owner.String())
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential for owner: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find credential by owner: %w", err)
	}
	return c, nil
}

func (s *PostgresCredentialStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

func scanCredential(row *sql.Row) (*models.Credential, error) {
	var (
		c        models.Credential
		tokenID  string
		sequence int64
		owner    string
	)
	if err := row.Scan(&tokenID, &sequence, &owner, &c.Name, &c.Description, &c.VerificationHash, &c.IssuedAt); err != nil {
		return nil, err
	}
	c.TokenID = domain.TokenID(tokenID)
	c.Sequence = uint64(sequence)
	c.Owner = domain.Identity(owner)
	c.IssuedAt = c.IssuedAt.UTC()
	return &c, nil
}
