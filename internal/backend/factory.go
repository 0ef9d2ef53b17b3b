package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"bilancio/internal/amqp"
	"bilancio/internal/log"
	"bilancio/internal/pricefeed"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/sheets/memory"
	"bilancio/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateIntegrations builds the quote slot, the quote history and the event
// publisher. Events are optional: a broker that cannot be reached is logged
// and skipped. A configured slot or history that fails to open is an error.
func (f *DefaultFactory) CreateIntegrations(ctx context.Context, config Config) (*Integrations, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	cleanup := func() error {
		var result error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result
	}

	in := &Integrations{}

	switch config.SlotType {
	case RedisSlot:
		client, err := pricefeed.NewRedisClient(ctx, config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis quote slot: %w", err)
		}
		closers = append(closers, client.Close)
		in.Slot = pricefeed.NewRedisSlot(client, config.QuoteTTL)
		f.logger.Info("Initialized redis quote slot", "ttl", config.QuoteTTL)
	default:
		in.Slot = pricefeed.NewMemorySlot()
	}

	if config.RateHistoryDB != "" {
		repo, err := storage.NewQuoteRepository(config.RateHistoryDB)
		if err != nil {
			return nil, multierror.Append(fmt.Errorf("failed to initialize quote history: %w", err), cleanup())
		}
		closers = append(closers, repo.Close)
		in.Recorder = repo
		in.History = repo
		f.logger.Info("Initialized quote history",
			"db_path", config.RateHistoryDB,
			"schema_version", repo.SchemaVersion())

		if config.HistoryRetention > 0 {
			cutoff := time.Now().Add(-config.HistoryRetention)
			if n, err := repo.PruneBefore(ctx, cutoff); err != nil {
				f.logger.Warn("Failed to prune quote history", log.FieldError, err.Error())
			} else if n > 0 {
				f.logger.Info("Pruned quote history", "removed", n, "cutoff", cutoff.Format(time.RFC3339))
			}
		}
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without ledger events", log.FieldError, err.Error())
		} else {
			closers = append(closers, client.Close)
			in.Publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	in.Cleanup = cleanup
	return in, nil
}

// CreateMirror builds the tabular mirror written by the worker.
func (f *DefaultFactory) CreateMirror(ctx context.Context, config Config) (*MirrorResult, error) {
	if !config.MirrorType.IsValid() {
		return nil, fmt.Errorf("invalid mirror type: %s", config.MirrorType)
	}

	switch config.MirrorType {
	case SheetsMirror:
		settings := gsheet.SettingsFromEnv()
		settings.SpreadsheetID = config.Sheets.SpreadsheetID
		settings.SheetName = config.Sheets.SheetName
		if config.Sheets.OAuthClientJSON != "" || config.Sheets.OAuthClientFile != "" {
			settings.OAuthClientJSON = config.Sheets.OAuthClientJSON
			settings.OAuthClientFile = config.Sheets.OAuthClientFile
			settings.OAuthTokenJSON = config.Sheets.OAuthTokenJSON
			settings.OAuthTokenFile = config.Sheets.OAuthTokenFile
		}
		cli, err := gsheet.New(ctx, settings)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets mirror", "sheet", config.Sheets.SheetName)
		return &MirrorResult{Mirror: cli}, nil
	default:
		f.logger.Info("Initialized in-memory mirror")
		return &MirrorResult{Mirror: memory.NewMirror()}, nil
	}
}
