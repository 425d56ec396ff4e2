package store

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/audiokeeper/internal/dbx"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/dmitrijs2005/audiokeeper/internal/repositories/records"
)

// Persister is the durable backing of a Store.
type Persister interface {
	Load(ctx context.Context) ([]*models.AudioRecord, error)
	Save(ctx context.Context, rec *models.AudioRecord) error
	Delete(ctx context.Context, id string) error
}

// SQLPersister saves records through the records repository, one
// transaction per write.
type SQLPersister struct {
	db *sql.DB
}

func NewSQLPersister(db *sql.DB) *SQLPersister {
	return &SQLPersister{db: db}
}

func (p *SQLPersister) Load(ctx context.Context) ([]*models.AudioRecord, error) {
	return records.NewSQLiteRepository(p.db).List(ctx)
}

func (p *SQLPersister) Save(ctx context.Context, rec *models.AudioRecord) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return records.NewSQLiteRepository(tx).Upsert(ctx, rec)
	})
}

func (p *SQLPersister) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return records.NewSQLiteRepository(tx).Delete(ctx, id)
	})
}
