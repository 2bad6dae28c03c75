// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
)

// DBFile is the database file name inside the data dir.
const DBFile = "fedgraph.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// recordRow is the primary table: one row per (kind, key).
type recordRow struct {
	Kind      string `gorm:"primaryKey;size:128"`
	RecordKey string `gorm:"primaryKey;size:1024"`
	Data      []byte
	Created   int64
	Modified  int64
}

func (recordRow) TableName() string { return "records" }

// indexRow holds one secondary index value for a record.
type indexRow struct {
	Kind       string `gorm:"primaryKey;size:128"`
	RecordKey  string `gorm:"primaryKey;size:1024"`
	IndexField string `gorm:"primaryKey;size:128;index:idx_record_index_lookup,priority:1"`
	IndexValue string `gorm:"size:1024;index:idx_record_index_lookup,priority:2"`
}

func (indexRow) TableName() string { return "record_indexes" }

// Driver implements store.Store using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, DBFile)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.WithContext(ctx).AutoMigrate(&recordRow{}, &indexRow{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// DB exposes the underlying handle for wrapping drivers.
func (d *Driver) DB() *gorm.DB { return d.db }

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get retrieves a record by kind and key.
func (d *Driver) Get(ctx context.Context, kind, key string) (*store.Record, error) {
	var row recordRow
	result := d.db.WithContext(ctx).First(&row, "kind = ? AND record_key = ?", kind, key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return d.toRecord(ctx, d.db, &row)
}

// Create inserts the record and its index rows in one transaction.
func (d *Driver) Create(ctx context.Context, rec *store.Record) error {
	now := time.Now().UnixMilli()
	created := rec.CreatedAt
	if created == 0 {
		created = now
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&recordRow{}).Where("kind = ? AND record_key = ?", rec.Kind, rec.Key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrAlreadyExists
		}
		row := recordRow{Kind: rec.Kind, RecordKey: rec.Key, Data: rec.Data, Created: created, Modified: now}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return writeIndexes(tx, rec)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrAlreadyExists
	}
	return err
}

// Update replaces the document and indexes of an existing record.
func (d *Driver) Update(ctx context.Context, rec *store.Record) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&recordRow{}).
			Where("kind = ? AND record_key = ?", rec.Kind, rec.Key).
			Updates(map[string]any{"data": []byte(rec.Data), "modified": time.Now().UnixMilli()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		if err := tx.Where("kind = ? AND record_key = ?", rec.Kind, rec.Key).Delete(&indexRow{}).Error; err != nil {
			return err
		}
		return writeIndexes(tx, rec)
	})
}

// Delete removes a record and its index rows.
func (d *Driver) Delete(ctx context.Context, kind, key string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("kind = ? AND record_key = ?", kind, key).Delete(&recordRow{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return tx.Where("kind = ? AND record_key = ?", kind, key).Delete(&indexRow{}).Error
	})
}

// Search intersects the index hits of every criterion.
func (d *Driver) Search(ctx context.Context, kind string, criteria map[string]string) ([]*store.Record, error) {
	db := d.db.WithContext(ctx)

	if len(criteria) == 0 {
		var rows []recordRow
		q := db.Order("kind, record_key")
		if kind != "" {
			q = q.Where("kind = ?", kind)
		}
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		return d.toRecords(ctx, rows)
	}

	var candidates map[[2]string]bool
	for field, value := range criteria {
		var hits []indexRow
		q := db.Where("index_field = ? AND index_value = ?", field, value)
		if kind != "" {
			q = q.Where("kind = ?", kind)
		}
		if err := q.Find(&hits).Error; err != nil {
			return nil, err
		}
		next := make(map[[2]string]bool, len(hits))
		for _, h := range hits {
			id := [2]string{h.Kind, h.RecordKey}
			if candidates == nil || candidates[id] {
				next[id] = true
			}
		}
		candidates = next
		if len(candidates) == 0 {
			return nil, nil
		}
	}

	out := make([]*store.Record, 0, len(candidates))
	for id := range candidates {
		rec, err := d.Get(ctx, id[0], id[1])
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	store.SortByKey(out)
	return out, nil
}

// Scan visits every record of kind in key order.
func (d *Driver) Scan(ctx context.Context, kind string, fn func(*store.Record) error) error {
	var rows []recordRow
	if err := d.db.WithContext(ctx).Where("kind = ?", kind).Order("record_key").Find(&rows).Error; err != nil {
		return err
	}
	recs, err := d.toRecords(ctx, rows)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeIndexes(tx *gorm.DB, rec *store.Record) error {
	for field, value := range rec.Indexes {
		if value == "" {
			continue
		}
		row := indexRow{Kind: rec.Kind, RecordKey: rec.Key, IndexField: field, IndexValue: value}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) toRecords(ctx context.Context, rows []recordRow) ([]*store.Record, error) {
	out := make([]*store.Record, 0, len(rows))
	for i := range rows {
		rec, err := d.toRecord(ctx, d.db, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *Driver) toRecord(ctx context.Context, db *gorm.DB, row *recordRow) (*store.Record, error) {
	var idx []indexRow
	if err := db.WithContext(ctx).Where("kind = ? AND record_key = ?", row.Kind, row.RecordKey).Find(&idx).Error; err != nil {
		return nil, err
	}
	rec := &store.Record{
		Kind:      row.Kind,
		Key:       row.RecordKey,
		Data:      row.Data,
		CreatedAt: row.Created,
		UpdatedAt: row.Modified,
	}
	if len(idx) > 0 {
		rec.Indexes = make(map[string]string, len(idx))
		for _, r := range idx {
			rec.Indexes[r.IndexField] = r.IndexValue
		}
	}
	return rec, nil
}

// Compile-time interface checks
var _ store.Store = (*Driver)(nil)
