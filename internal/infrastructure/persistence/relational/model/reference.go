package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Policy struct {
	PolicyID   string          `gorm:"column:policy_id;type:varchar(64);primaryKey"`
	FarmerID   string          `gorm:"column:farmer_id;type:varchar(64);not null;index"`
	InsurerID  string          `gorm:"column:insurer_id;type:varchar(64);not null"`
	CropType   string          `gorm:"column:crop_type;type:varchar(64);not null"`
	SumInsured decimal.Decimal `gorm:"column:sum_insured;type:decimal(20,4);not null"`
	Status     string          `gorm:"column:status;type:varchar(16);not null"`
	StartDate  time.Time       `gorm:"column:start_date;not null"`
	EndDate    time.Time       `gorm:"column:end_date;not null"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;not null"`
}

func (Policy) TableName() string {
	return "policies"
}

type Farmer struct {
	FarmerID          string    `gorm:"column:farmer_id;type:varchar(64);primaryKey"`
	AccountRef        string    `gorm:"column:account_ref;type:varchar(128);not null"`
	Name              string    `gorm:"column:name;type:varchar(255);not null"`
	BankAccountName   string    `gorm:"column:bank_account_name;type:varchar(255);not null"`
	BankAccountNumber string    `gorm:"column:bank_account_number;type:varchar(64);not null"`
	BankCode          string    `gorm:"column:bank_code;type:varchar(32);not null"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null"`
}

func (Farmer) TableName() string {
	return "farmers"
}

type Insurer struct {
	InsurerID  string    `gorm:"column:insurer_id;type:varchar(64);primaryKey"`
	AccountRef string    `gorm:"column:account_ref;type:varchar(128);not null"`
	Name       string    `gorm:"column:name;type:varchar(255);not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (Insurer) TableName() string {
	return "insurers"
}
