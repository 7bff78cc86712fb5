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

type TokenRepository struct {
	DB *Connection
}

var _ ports.TokenRepository = TokenRepository{}

func (r TokenRepository) FindByWalletAddress(ctx context.Context, walletAddress string) (core.Jwt, error) {
	var record JwtRecord
	err := r.DB.Sql().WithContext(ctx).
		Where("wallet_address = ?", walletAddress).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Jwt{}, core.ErrTokenNotFound
	}
	if err != nil {
		return core.Jwt{}, fmt.Errorf("failed to find token of %s: %w", walletAddress, err)
	}
	return toJwt(record), nil
}

func (r TokenRepository) Create(ctx context.Context, jwt core.Jwt) error {
	record := JwtRecord{WalletAddress: jwt.WalletAddress, Token: jwt.Token}
	result := r.DB.Sql().WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wallet_address"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to create token of %s: %w", jwt.WalletAddress, result.Error)
	}
	if result.RowsAffected == 0 {
		return core.ErrTokenExists
	}
	return nil
}

func (r TokenRepository) Replace(ctx context.Context, previous core.Jwt, token string) (core.Jwt, error) {
	result := r.DB.Sql().WithContext(ctx).
		Model(&JwtRecord{}).
		Where("wallet_address = ? AND version = ?", previous.WalletAddress, previous.Version).
		Updates(map[string]interface{}{"token": token, "version": previous.Version + 1})
	if result.Error != nil {
		return core.Jwt{}, fmt.Errorf("failed to replace token of %s: %w", previous.WalletAddress, result.Error)
	}
	if result.RowsAffected == 0 {
		return core.Jwt{}, core.ErrVersionConflict
	}
	return core.Jwt{WalletAddress: previous.WalletAddress, Token: token, Version: previous.Version + 1}, nil
}

func toJwt(record JwtRecord) core.Jwt {
	return core.Jwt{WalletAddress: record.WalletAddress, Token: record.Token, Version: record.Version}
}
