package writer

import (
	"context"
	"fmt"
	"time"

	"shorturl-analytics/models"

	"gorm.io/gorm"
)

// SQLiteWriter stores snapshots as click_snapshots rows through gorm. A batch
// is inserted in a single statement, so it either fully succeeds or fails as
// a whole.
type SQLiteWriter struct {
	db *gorm.DB
}

func NewSQLiteWriter(db *gorm.DB) *SQLiteWriter {
	return &SQLiteWriter{db: db}
}

func (w *SQLiteWriter) Bulk(ctx context.Context, docs []models.OutputDocument) (*BulkResponse, error) {
	start := time.Now()
	rows := make([]models.ClickSnapshot, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, models.NewClickSnapshot(doc))
	}
	if err := w.db.WithContext(ctx).CreateInBatches(&rows, len(rows)).Error; err != nil {
		return nil, fmt.Errorf("inserting %d snapshots: %w", len(rows), err)
	}

	resp := &BulkResponse{Took: time.Since(start)}
	for _, row := range rows {
		resp.Items = append(resp.Items, BulkItem{
			Index:  "click_snapshots",
			ID:     fmt.Sprint(row.ID),
			Op:     "create",
			Status: 201,
		})
	}
	return resp, nil
}

func (w *SQLiteWriter) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
