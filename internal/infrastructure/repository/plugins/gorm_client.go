package plugins

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/watanabetatsumi/nutricache/internal/infrastructure/repository"
)

// FactEntryRecord nutrition_fact_entriesテーブルの1行
type FactEntryRecord struct {
	ID        uint      `gorm:"primaryKey"`
	CacheKey  string    `gorm:"column:cache_key;type:varchar(255);uniqueIndex;not null"`
	Payload   string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"index"`
}

func (FactEntryRecord) TableName() string {
	return "nutrition_fact_entries"
}

// CacheMarkerRecord cache_markersテーブルの1行
type CacheMarkerRecord struct {
	Name  string `gorm:"primaryKey;type:varchar(64)"`
	Value string `gorm:"type:text;not null"`
}

func (CacheMarkerRecord) TableName() string {
	return "cache_markers"
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenPostgres PostgreSQLに接続する
func OpenPostgres(conf PostgresConfig) (*gorm.DB, error) {
	sslMode := conf.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		conf.Host, conf.User, conf.Password, conf.DBName, conf.Port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// GormClient gormでアクセスできるRDBをFactRepoClientとして使う実装
type GormClient struct {
	db *gorm.DB
}

// NewGormClient テーブルをマイグレーションしてクライアントを返す
func NewGormClient(db *gorm.DB) (*GormClient, error) {
	if err := db.AutoMigrate(&FactEntryRecord{}, &CacheMarkerRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache tables: %w", err)
	}
	return &GormClient{db: db}, nil
}

// ApplyMutations 1つのトランザクションで適用する
func (gc *GormClient) ApplyMutations(ctx context.Context, mutations []repository.Mutation) error {
	return gc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range mutations {
			if m.Delete {
				if err := tx.Where("cache_key = ?", m.Record.Key).Delete(&FactEntryRecord{}).Error; err != nil {
					return err
				}
				continue
			}

			rec := FactEntryRecord{
				CacheKey: m.Record.Key,
				Payload:  string(m.Record.Data),
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "cache_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
			}).Create(&rec).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (gc *GormClient) ScanEntries(ctx context.Context) ([]repository.EntryRecord, error) {
	var rows []FactEntryRecord
	if err := gc.db.WithContext(ctx).Order("cache_key").Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]repository.EntryRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, repository.EntryRecord{
			Key:  r.CacheKey,
			Data: []byte(r.Payload),
		})
	}
	return records, nil
}

func (gc *GormClient) GetMarker(ctx context.Context, name string) ([]byte, error) {
	var rec CacheMarkerRecord
	err := gc.db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.Name == "" {
		return nil, nil
	}
	return []byte(rec.Value), nil
}

func (gc *GormClient) SetMarker(ctx context.Context, name string, data []byte) error {
	rec := CacheMarkerRecord{Name: name, Value: string(data)}
	return gc.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rec).Error
}
