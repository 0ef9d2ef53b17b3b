package backend

import (
	"context"
	"time"

	"bilancio/internal/pricefeed"
	"bilancio/internal/services"
	"bilancio/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Integrations holds the optional collaborators of the ledger service.
// Nil fields mean the integration is disabled.
type Integrations struct {
	Slot      pricefeed.QuoteSlot
	Recorder  pricefeed.QuoteRecorder
	History   services.QuoteHistory
	Publisher services.EventPublisher
	Cleanup   CleanupFunc
}

// MirrorResult contains the mirror instance and optional cleanup function
type MirrorResult struct {
	Mirror  sheets.TabularMirror
	Cleanup CleanupFunc
}

// Factory creates integrations based on configuration
type Factory interface {
	CreateIntegrations(ctx context.Context, config Config) (*Integrations, error)
	CreateMirror(ctx context.Context, config Config) (*MirrorResult, error)
}

// Config holds configuration for integration creation
type Config struct {
	// Quote slot
	SlotType SlotType
	RedisURL string
	QuoteTTL time.Duration

	// Quote history (SQLite), empty disables
	RateHistoryDB    string
	HistoryRetention time.Duration

	// Ledger events, empty URL disables
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Mirror
	MirrorType MirrorType
	Sheets     SheetsConfig
}

// SheetsConfig selects the spreadsheet and its credentials.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	OAuthClientFile string
	OAuthTokenFile  string
	OAuthClientJSON string
	OAuthTokenJSON  string
}

// SlotType represents where the latest quote is held
type SlotType string

const (
	MemorySlot SlotType = "memory"
	RedisSlot  SlotType = "redis"
)

// MirrorType represents where ledger events are mirrored to
type MirrorType string

const (
	MemoryMirror MirrorType = "memory"
	SheetsMirror MirrorType = "sheets"
)

// String implements fmt.Stringer
func (st SlotType) String() string {
	return string(st)
}

// IsValid returns true if the slot type is valid
func (st SlotType) IsValid() bool {
	switch st {
	case MemorySlot, RedisSlot:
		return true
	default:
		return false
	}
}

func (mt MirrorType) String() string {
	return string(mt)
}

func (mt MirrorType) IsValid() bool {
	switch mt {
	case MemoryMirror, SheetsMirror:
		return true
	default:
		return false
	}
}
