package indexdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"civforge.ai/internal/sim/world/terrain/overlay"
)

type overlayDeltaRow struct {
	X         int64     `gorm:"column:x;primaryKey;autoIncrement:false"`
	Y         int64     `gorm:"column:y;primaryKey;autoIncrement:false"`
	DeltaJSON string    `gorm:"column:delta_json;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (overlayDeltaRow) TableName() string { return "terrain_overlay_deltas" }

type worldMetaRow struct {
	ID         int       `gorm:"column:id;primaryKey;autoIncrement:false"`
	Seed       string    `gorm:"column:seed;type:text;not null"`
	Size       int       `gorm:"column:size;not null"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null"`
}

func (worldMetaRow) TableName() string { return "terrain_world_meta" }

// PostgresIndex writes synchronously; every call is bounded by writeTimeout.
type PostgresIndex struct {
	db     *gorm.DB
	closed atomic.Bool
}

const writeTimeout = 5 * time.Second

func OpenPostgres(dsn string) (*PostgresIndex, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&overlayDeltaRow{}, &worldMetaRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresIndex{db: db}, nil
}

func (p *PostgresIndex) conn() (*gorm.DB, context.CancelFunc, error) {
	if p == nil || p.closed.Load() {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	return p.db.WithContext(ctx), cancel, nil
}

func (p *PostgresIndex) RecordWorld(seed string, size int) error {
	db, cancel, err := p.conn()
	if err != nil {
		return err
	}
	defer cancel()
	row := worldMetaRow{ID: 1, Seed: seed, Size: size, RecordedAt: time.Now().UTC()}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"seed", "size", "recorded_at"}),
	}).Create(&row).Error
}

func (p *PostgresIndex) SaveDelta(x, y int, d overlay.Delta) error {
	if d.IsEmpty() {
		return p.DeleteDelta(x, y)
	}
	raw, err := encodeDelta(d)
	if err != nil {
		return err
	}
	db, cancel, err := p.conn()
	if err != nil {
		return err
	}
	defer cancel()
	row := overlayDeltaRow{X: int64(x), Y: int64(y), DeltaJSON: raw, UpdatedAt: time.Now().UTC()}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "x"}, {Name: "y"}},
		DoUpdates: clause.AssignmentColumns([]string{"delta_json", "updated_at"}),
	}).Create(&row).Error
}

func (p *PostgresIndex) DeleteDelta(x, y int) error {
	db, cancel, err := p.conn()
	if err != nil {
		return err
	}
	defer cancel()
	return db.Where("x = ? AND y = ?", x, y).Delete(&overlayDeltaRow{}).Error
}

func (p *PostgresIndex) Reset() error {
	db, cancel, err := p.conn()
	if err != nil {
		return err
	}
	defer cancel()
	return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&overlayDeltaRow{}).Error
}

func (p *PostgresIndex) LoadDeltas(ctx context.Context) ([]overlay.Entry, error) {
	if p == nil || p.closed.Load() {
		return nil, ErrClosed
	}
	var rows []overlayDeltaRow
	if err := p.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Y != rows[j].Y {
			return rows[i].Y < rows[j].Y
		}
		return rows[i].X < rows[j].X
	})
	out := make([]overlay.Entry, 0, len(rows))
	for _, r := range rows {
		d, err := decodeDelta(r.DeltaJSON)
		if err != nil {
			return nil, fmt.Errorf("delta (%d,%d): %w", r.X, r.Y, err)
		}
		out = append(out, overlay.Entry{X: int(r.X), Y: int(r.Y), Delta: d})
	}
	return out, nil
}

func (p *PostgresIndex) LoadWorld(ctx context.Context) (WorldMeta, bool, error) {
	if p == nil || p.closed.Load() {
		return WorldMeta{}, false, ErrClosed
	}
	var row worldMetaRow
	err := p.db.WithContext(ctx).Where(&worldMetaRow{ID: 1}).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return WorldMeta{}, false, nil
		}
		return WorldMeta{}, false, err
	}
	return WorldMeta{Seed: row.Seed, Size: row.Size, RecordedAt: row.RecordedAt}, true, nil
}

func (p *PostgresIndex) Close() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
