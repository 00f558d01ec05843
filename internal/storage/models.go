package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures a dispatched alert for auditing. Price history is
// never persisted; only what was actually sent leaves memory.
type AlertRecord struct {
	ID           int64
	Symbol       string
	Kind         string
	RuleID       string
	MetricPct    decimal.Decimal
	ThresholdPct decimal.Decimal
	Direction    string
	Notable      bool
	FiredAt      time.Time
	CreatedAt    time.Time
}
