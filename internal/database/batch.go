package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Store is the full set of repository operations used by the sync engine: the
// generated queries plus the hand-written batch insert.
type Store interface {
	Querier
	CreateRepositories(ctx context.Context, arg []CreateRepositoryParams) ([]Repository, error)
}

var _ Store = (*Queries)(nil)

// CreateRepositories inserts all rows in one pgx batch. Outside an explicit transaction
// the batch runs as a single implicit transaction, so either every row is written or
// none is.
func (q *Queries) CreateRepositories(ctx context.Context, arg []CreateRepositoryParams) ([]Repository, error) {
	if len(arg) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, a := range arg {
		batch.Queue(createRepository,
			a.Name,
			a.Contributors,
			a.CatalogStatus,
			a.SourceHostStatus,
			a.QualityStatus,
		)
	}

	br := q.db.SendBatch(ctx, batch)

	items := make([]Repository, 0, len(arg))
	for range arg {
		var i Repository
		if err := br.QueryRow().Scan(
			&i.ID,
			&i.Name,
			&i.Contributors,
			&i.CatalogStatus,
			&i.SourceHostStatus,
			&i.QualityStatus,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			_ = br.Close()
			return nil, err
		}
		items = append(items, i)
	}

	if err := br.Close(); err != nil {
		return nil, err
	}
	return items, nil
}
