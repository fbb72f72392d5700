package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	StatusProcessing TransactionStatus = "Processing"
	StatusSucceeded  TransactionStatus = "Succeeded"
	StatusFailed     TransactionStatus = "Failed"
)

// TransactionRecord is one upstream withdrawal as we store it. ExternalID is
// the upstream's own identifier and is unique within a source's table; it is
// the only key used for upsert decisions.
type TransactionRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExternalID string    `gorm:"uniqueIndex;size:64"`
	SourceID   SourceID  `gorm:"index;size:32"`

	OccurredAt time.Time
	// OccurredAtRaw keeps the upstream's original encoding when none of the
	// known date formats matched.
	OccurredAtRaw string

	Amount     decimal.Decimal   `gorm:"type:numeric(14,2);index"`
	Status     TransactionStatus `gorm:"index;size:16"`
	StatusCode int

	SettledAt *time.Time
	Reference string `gorm:"index"`

	HolderName    string
	AccountNumber string `gorm:"index"`
	RoutingCode   string
	// BankDetails preserves the raw upstream bank sub-document, when it was
	// valid JSON.
	BankDetails datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}
