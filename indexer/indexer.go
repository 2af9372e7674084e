package indexer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendpool/lending"
)

// EventRecord is the persisted form of an engine event. Amounts are stored as
// decimal strings so arbitrary-precision values survive any SQL backend.
type EventRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type         string    `gorm:"index"`
	Account      string    `gorm:"index"`
	Counterparty string    `gorm:"index"`
	Amount       string
	Amount2      string
	OccurredAt   time.Time `gorm:"index"`
	CreatedAt    time.Time
}

// Indexer subscribes to engine events and writes them to a SQL database for
// later querying. Emit never fails the engine operation; persistence errors
// are logged and dropped.
type Indexer struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open connects to the event database. A non-empty postgres DSN selects the
// postgres driver; otherwise path is opened as a sqlite file (":memory:" for
// tests).
func Open(postgresDSN, path string, log *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	if postgresDSN != "" {
		dialector = postgres.Open(postgresDSN)
	} else {
		dialector = sqlite.Open(path)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, log: log}, nil
}

// Emit implements lending.Emitter.
func (ix *Indexer) Emit(ev lending.Event) {
	rec := toRecord(ev)
	if rec == nil {
		return
	}
	if err := ix.db.Create(rec).Error; err != nil {
		ix.log.Error("index event", "type", rec.Type, "error", err)
	}
}

func toRecord(ev lending.Event) *EventRecord {
	switch e := ev.(type) {
	case lending.DepositEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), Account: e.Account.Hex(), Amount: e.Amount.String(), OccurredAt: e.Timestamp}
	case lending.WithdrawEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), Account: e.Account.Hex(), Amount: e.Amount.String(), OccurredAt: e.Timestamp}
	case lending.BorrowEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), Account: e.Account.Hex(), Amount: e.Amount.String(), OccurredAt: e.Timestamp}
	case lending.RepayEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), Account: e.Account.Hex(), Amount: e.Applied.String(), Amount2: e.Requested.String(), OccurredAt: e.Timestamp}
	case lending.LiquidationEvent:
		return &EventRecord{
			ID:           e.ID,
			Type:         e.EventType(),
			Account:      e.Borrower.Hex(),
			Counterparty: e.Liquidator.Hex(),
			Amount:       e.Repaid.String(),
			Amount2:      e.Seized.String(),
			OccurredAt:   e.Timestamp,
		}
	case lending.AccrualEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), Amount: e.Interest.String(), Amount2: e.BorrowIndex.String(), OccurredAt: e.Timestamp}
	case lending.LiquidityEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), Account: e.Manager.Hex(), Amount: e.Amount.String(), OccurredAt: e.Timestamp}
	case lending.RiskParamsEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), OccurredAt: e.Timestamp}
	case lending.InterestRateEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), Amount: e.RatePerSecond.String(), OccurredAt: e.Timestamp}
	case lending.OraclesEvent:
		return &EventRecord{ID: e.ID, Type: e.EventType(), OccurredAt: e.Timestamp}
	default:
		return nil
	}
}

// AccountEvents returns the most recent events touching the address, newest
// first.
func (ix *Indexer) AccountEvents(account string, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []EventRecord
	err := ix.db.
		Where("account = ? OR counterparty = ?", account, account).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// RecentEvents returns the most recent events of any type, newest first.
func (ix *Indexer) RecentEvents(limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []EventRecord
	err := ix.db.Order("occurred_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Liquidations returns recent liquidation events, newest first.
func (ix *Indexer) Liquidations(limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []EventRecord
	err := ix.db.
		Where("type = ?", lending.TypeLiquidation).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
