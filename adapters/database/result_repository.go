package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResultNameRepository struct {
	DB *Connection
}

var _ ports.ResultNameRepository = ResultNameRepository{}

func (r ResultNameRepository) Save(ctx context.Context, name core.ResultName) error {
	record := ResultNameRecord{ChainTaskID: name.ChainTaskID, Handle: name.Handle}
	result := r.DB.Sql().WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "chain_task_id"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to save result name of %s: %w", name.ChainTaskID, result.Error)
	}
	if result.RowsAffected == 0 {
		return core.ErrResultAlreadyStored
	}
	return nil
}

func (r ResultNameRepository) Find(ctx context.Context, chainTaskID string) (core.ResultName, error) {
	var record ResultNameRecord
	err := r.DB.Sql().WithContext(ctx).
		Where("chain_task_id = ?", chainTaskID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ResultName{}, core.ErrResultNotFound
	}
	if err != nil {
		return core.ResultName{}, fmt.Errorf("failed to find result name of %s: %w", chainTaskID, err)
	}
	return core.ResultName{ChainTaskID: record.ChainTaskID, Handle: record.Handle}, nil
}

// ResultDocuments keeps whole result archives in the database
type ResultDocuments struct {
	DB *Connection
}

// Insert returns core.ErrResultAlreadyStored when the task already has a document
func (r ResultDocuments) Insert(ctx context.Context, chainTaskID string, zip []byte) error {
	record := ResultDocument{ChainTaskID: chainTaskID, Zip: zip}
	result := r.DB.Sql().WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "chain_task_id"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to insert result of %s: %w", chainTaskID, result.Error)
	}
	if result.RowsAffected == 0 {
		return core.ErrResultAlreadyStored
	}
	return nil
}

func (r ResultDocuments) Find(ctx context.Context, chainTaskID string) ([]byte, error) {
	var record ResultDocument
	err := r.DB.Sql().WithContext(ctx).
		Where("chain_task_id = ?", chainTaskID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find result of %s: %w", chainTaskID, err)
	}
	return record.Zip, nil
}

func (r ResultDocuments) Exists(ctx context.Context, chainTaskID string) (bool, error) {
	var count int64
	err := r.DB.Sql().WithContext(ctx).
		Model(&ResultDocument{}).
		Where("chain_task_id = ?", chainTaskID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count results of %s: %w", chainTaskID, err)
	}
	return count > 0, nil
}
