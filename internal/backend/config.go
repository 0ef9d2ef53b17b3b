package backend

import (
	"fmt"
	"time"

	"bilancio/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	slot := MemorySlot
	if appConfig.RedisURL != "" {
		slot = RedisSlot
	}
	mirror := MemoryMirror
	if appConfig.MirrorEnabled() {
		mirror = SheetsMirror
	}

	return Config{
		SlotType: slot,
		RedisURL: appConfig.RedisURL,
		QuoteTTL: quoteTTL(appConfig.PricePollInterval, appConfig.PriceFetchTimeout),

		RateHistoryDB:    appConfig.RateHistoryDB,
		HistoryRetention: appConfig.RateHistoryRetention,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		MirrorType: mirror,
		Sheets: SheetsConfig{
			SpreadsheetID:   appConfig.GoogleSpreadsheetID,
			SheetName:       appConfig.GoogleSheetName,
			OAuthClientFile: appConfig.GoogleOAuthClientFile,
			OAuthTokenFile:  appConfig.GoogleOAuthTokenFile,
			OAuthClientJSON: appConfig.GoogleOAuthClientJSON,
			OAuthTokenJSON:  appConfig.GoogleOAuthTokenJSON,
		},
	}, nil
}

// quoteTTL lets a shared quote survive one missed poll.
func quoteTTL(interval, timeout time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return 2*interval + timeout
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.SlotType.IsValid() {
		return fmt.Errorf("invalid quote slot type: %s", c.SlotType)
	}
	if !c.MirrorType.IsValid() {
		return fmt.Errorf("invalid mirror type: %s", c.MirrorType)
	}
	if c.SlotType == RedisSlot && c.RedisURL == "" {
		return fmt.Errorf("Redis URL is required for redis quote slot")
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP exchange and queue are required when AMQP URL is set")
	}
	if c.MirrorType == SheetsMirror && c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for sheets mirror")
	}
	return nil
}
