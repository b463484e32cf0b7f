package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shorturl-analytics/config"
	"shorturl-analytics/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// batchSender is satisfied by *pgxpool.Pool and *pgx.Conn.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresWriter inserts snapshots with one pgx batch per bulk request. The
// target table must already exist:
//
//	CREATE TABLE click_snapshots (
//	  id bigserial PRIMARY KEY, short_url_id text NOT NULL, status text,
//	  created text, clicks_observed_at timestamptz NOT NULL,
//	  all_clicks bigint NOT NULL, countries jsonb, referrers jsonb,
//	  browsers jsonb, platforms jsonb);
type PostgresWriter struct {
	db    batchSender
	pool  *pgxpool.Pool
	table string
	query string
}

// OpenPostgres connects a pool for cfg and wraps it in a PostgresWriter.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*PostgresWriter, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connecting postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	w := NewPostgresWriter(pool, cfg.Table)
	w.pool = pool
	return w, nil
}

func NewPostgresWriter(db batchSender, table string) *PostgresWriter {
	ident := pgx.Identifier(strings.Split(table, ".")).Sanitize()
	return &PostgresWriter{
		db:    db,
		table: table,
		query: `INSERT INTO ` + ident + `
			(short_url_id, status, created, clicks_observed_at, all_clicks,
			 countries, referrers, browsers, platforms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	}
}

func (w *PostgresWriter) Bulk(ctx context.Context, docs []models.OutputDocument) (*BulkResponse, error) {
	start := time.Now()
	b := &pgx.Batch{}
	for _, doc := range docs {
		arrays := make([]string, 0, 4)
		for _, arr := range [][]models.Breakdown{doc.Countries, doc.Referrers, doc.Browsers, doc.Platforms} {
			if arr == nil {
				arr = []models.Breakdown{}
			}
			data, err := json.Marshal(arr)
			if err != nil {
				return nil, fmt.Errorf("encoding breakdowns of %s: %w", doc.ID, err)
			}
			arrays = append(arrays, string(data))
		}
		b.Queue(w.query,
			doc.ID, doc.Status, doc.Created, doc.ClicksObservedAt, doc.AllClicks,
			arrays[0], arrays[1], arrays[2], arrays[3],
		)
	}

	br := w.db.SendBatch(ctx, b)
	resp := &BulkResponse{Items: make([]BulkItem, len(docs))}
	var firstErr error
	for i, doc := range docs {
		item := BulkItem{Index: w.table, ID: doc.ID, Op: "insert", Status: 201}
		if _, err := br.Exec(); err != nil {
			item.Status = 500
			item.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		}
		resp.Items[i] = item
	}
	if err := br.Close(); err != nil && firstErr == nil {
		return nil, fmt.Errorf("closing batch: %w", err)
	}

	// The batch runs in one implicit transaction: one failure rolls back
	// every row of the request.
	if firstErr != nil {
		for i := range resp.Items {
			if !resp.Items[i].Failed() {
				resp.Items[i].Status = 500
				resp.Items[i].Error = "rolled back: " + firstErr.Error()
			}
		}
	}
	resp.Took = time.Since(start)
	return resp, nil
}

// Ping checks the pool; writers built on a bare batch sender always succeed.
func (w *PostgresWriter) Ping(ctx context.Context) error {
	if w.pool == nil {
		return nil
	}
	return w.pool.Ping(ctx)
}

func (w *PostgresWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}
