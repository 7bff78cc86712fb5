package database

import "time"

// JwtRecord is the stored access token of a wallet
type JwtRecord struct {
	ID            uint   `gorm:"primaryKey"`
	WalletAddress string `gorm:"uniqueIndex;not null"`
	Token         string `gorm:"not null"`
	Version       int64  `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (JwtRecord) TableName() string { return "jwts" }

// ResultNameRecord maps a task to the handle of its uploaded result
type ResultNameRecord struct {
	ID          uint   `gorm:"primaryKey"`
	ChainTaskID string `gorm:"uniqueIndex;not null"`
	Handle      string `gorm:"not null"`
	CreatedAt   time.Time
}

func (ResultNameRecord) TableName() string { return "result_names" }

// ResultDocument holds a result archive when results are kept in the database
type ResultDocument struct {
	ID          uint   `gorm:"primaryKey"`
	ChainTaskID string `gorm:"uniqueIndex;not null"`
	Zip         []byte `gorm:"not null"`
	CreatedAt   time.Time
}

func (ResultDocument) TableName() string { return "results" }
