package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"transaction-sync-backend/internal/models"
)

// TransactionRecords is the persistence port for synchronized records.
// Each source has its own table; external_id is unique within it.
type TransactionRecords interface {
	// FindByExternalID returns (nil, nil) when no record exists.
	FindByExternalID(ctx context.Context, source models.SourceID, externalID string) (*models.TransactionRecord, error)
	Insert(ctx context.Context, record *models.TransactionRecord) error
	Update(ctx context.Context, source models.SourceID, externalID string, fields map[string]any) error
	// FindMissingAmounts lists records whose amount is still zero or null.
	FindMissingAmounts(ctx context.Context, source models.SourceID) ([]models.TransactionRecord, error)
}

type GormTransactionRecords struct {
	db *gorm.DB
}

func NewTransactionRecords(db *gorm.DB) *GormTransactionRecords {
	return &GormTransactionRecords{db: db}
}

// Migrate creates or updates the per-source tables.
func (r *GormTransactionRecords) Migrate(sources []models.SourceID) error {
	for _, source := range sources {
		if err := r.db.Table(source.Table()).AutoMigrate(&models.TransactionRecord{}); err != nil {
			return fmt.Errorf("migrate %s: %w", source.Table(), err)
		}
	}
	return nil
}

func (r *GormTransactionRecords) table(ctx context.Context, source models.SourceID) *gorm.DB {
	return r.db.WithContext(ctx).Table(source.Table())
}

func (r *GormTransactionRecords) FindByExternalID(ctx context.Context, source models.SourceID, externalID string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := r.table(ctx, source).Where("external_id = ?", externalID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *GormTransactionRecords) Insert(ctx context.Context, record *models.TransactionRecord) error {
	return r.table(ctx, record.SourceID).Create(record).Error
}

func (r *GormTransactionRecords) Update(ctx context.Context, source models.SourceID, externalID string, fields map[string]any) error {
	return r.table(ctx, source).Where("external_id = ?", externalID).Updates(fields).Error
}

func (r *GormTransactionRecords) FindMissingAmounts(ctx context.Context, source models.SourceID) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	err := r.table(ctx, source).
		Where("amount IS NULL OR amount = 0").
		Find(&records).Error
	return records, err
}
