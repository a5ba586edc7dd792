package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GORM models used for persistence. Money columns are numeric(10,2).
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Roles        datatypes.JSON
	Superuser    bool
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type AuthorModel struct {
	ID        string `gorm:"primaryKey"`
	FirstName string `gorm:"not null;index:idx_author_name"`
	LastName  string `gorm:"not null;index:idx_author_name"`
	Bio       string
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

type BookModel struct {
	ID              string `gorm:"primaryKey"`
	Title           string `gorm:"not null"`
	AuthorID        string `gorm:"not null;index"`
	ISBN            string `gorm:"uniqueIndex;not null"`
	Description     string `gorm:"type:text"`
	TotalCopies     int    `gorm:"not null"`
	AvailableCopies int    `gorm:"not null"`
	Available       bool   `gorm:"not null;index"`
	CoverKey        string
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type LoanModel struct {
	ID             string          `gorm:"primaryKey"`
	BookID         string          `gorm:"not null;index"`
	BorrowerID     string          `gorm:"not null;index"`
	LoanDate       time.Time       `gorm:"not null"`
	DueDate        *time.Time
	ReturnDate     *time.Time
	ApprovedAt     *time.Time
	State          string          `gorm:"not null;index"`
	FixedSurcharge decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

type FineModel struct {
	ID       string          `gorm:"primaryKey"`
	LoanID   string          `gorm:"not null;uniqueIndex:idx_fine_loan_type"`
	Type     string          `gorm:"not null;uniqueIndex:idx_fine_loan_type"`
	Amount   decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Paid     bool            `gorm:"not null;index"`
	IssuedAt time.Time       `gorm:"not null"`
}
