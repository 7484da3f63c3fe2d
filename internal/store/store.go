package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors mapped from driver-level failures.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const uniqueViolationCode = "23505"

// Store bundles the pgx repositories over one connection pool.
type Store struct {
	pool *pgxpool.Pool

	Documents     *DocumentRepo
	Chunks        *ChunkRepo
	Relationships *RelationshipRepo
	Users         *UserRepo
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:          pool,
		Documents:     &DocumentRepo{pool: pool},
		Chunks:        &ChunkRepo{pool: pool},
		Relationships: &RelationshipRepo{pool: pool},
		Users:         &UserRepo{pool: pool},
	}
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Side effects performed inside fn against external systems
// are the caller's responsibility.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// mapError translates driver errors to the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
