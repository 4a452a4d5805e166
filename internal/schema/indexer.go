package schema

import (
	"context"
	"fmt"

	apperrors "querybot/internal/common/errors"
	"querybot/internal/common/logger"
	"querybot/internal/index"

	"golang.org/x/sync/errgroup"
)

const defaultIntrospectionWorkers = 4

// Catalog is the part of the SQL client the indexer reads from.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	TableInfo(ctx context.Context, table string) (string, error)
}

// Indexer rebuilds the schema index from the live database, one document per table.
type Indexer struct {
	catalog Catalog
	index   index.Index
	log     logger.Logger
	workers int
}

func NewIndexer(catalog Catalog, idx index.Index, log logger.Logger) *Indexer {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Indexer{catalog: catalog, index: idx, log: log, workers: defaultIntrospectionWorkers}
}

// Refresh replaces the index contents with the current schema and returns the
// number of tables indexed. Tables that cannot be described are skipped.
func (i *Indexer) Refresh(ctx context.Context) (int, error) {
	tables, err := i.catalog.ListTables(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tables: %w", err)
	}

	described := make([]*index.Document, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for n, table := range tables {
		g.Go(func() error {
			info, err := i.catalog.TableInfo(gctx, table)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				i.log.Warn("Skipping table in schema index", map[string]interface{}{
					"table": table,
					"error": err.Error(),
				})
				return nil
			}
			described[n] = &index.Document{ID: table, Table: table, Content: info}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	docs := make([]index.Document, 0, len(described))
	for _, d := range described {
		if d != nil {
			docs = append(docs, *d)
		}
	}

	if err := i.index.Reset(ctx); err != nil {
		return 0, err
	}
	if err := i.index.Add(ctx, docs...); err != nil {
		return 0, err
	}

	i.log.Info("Schema index refreshed", map[string]interface{}{
		"tables": len(docs),
	})
	return len(docs), nil
}

// EnsureIndexed refreshes only when the index holds no documents or does not exist yet.
func (i *Indexer) EnsureIndexed(ctx context.Context) error {
	n, err := i.index.Count(ctx)
	if err != nil && apperrors.CodeOf(err) != apperrors.ErrCodeIndexNotFound {
		return err
	}
	if n > 0 {
		i.log.Debug("Schema index already populated", map[string]interface{}{"documents": n})
		return nil
	}
	_, err = i.Refresh(ctx)
	return err
}
