package worker

import (
	"context"
	"fmt"

	"bilancio/internal/amqp"
	"bilancio/internal/codec"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
)

// MirrorWorker applies ledger events to a spreadsheet mirror.
type MirrorWorker struct {
	mirror sheets.TabularMirror
	logger *log.Logger
}

func NewMirrorWorker(mirror sheets.TabularMirror, logger *log.Logger) *MirrorWorker {
	return &MirrorWorker{
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP. Appended
// records go after the last row; a replacement rewrites the whole sheet.
func (w *MirrorWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	txs, err := ev.Decode()
	if err != nil {
		return fmt.Errorf("decode %s event: %w", ev.Kind, err)
	}

	switch ev.Kind {
	case amqp.EventAppended:
		rows := make([][]string, 0, len(txs)+1)
		n, err := w.mirror.RowCount(ctx)
		if err != nil {
			return fmt.Errorf("count mirror rows: %w", err)
		}
		if n == 0 {
			rows = append(rows, append([]string(nil), codec.Header...))
		}
		for _, tx := range txs {
			rows = append(rows, codec.Row(tx))
		}
		if err := w.mirror.AppendRows(ctx, rows); err != nil {
			return fmt.Errorf("append to mirror: %w", err)
		}
	case amqp.EventReplaced:
		if err := w.mirror.ReplaceRows(ctx, codec.TabularRows(txs)); err != nil {
			return fmt.Errorf("replace mirror: %w", err)
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	w.logger.InfoContext(ctx, "Mirror updated",
		log.FieldOperation, log.OpSync,
		log.FieldEventKind, ev.Kind,
		log.FieldRevision, ev.Revision,
		log.FieldCount, len(txs))
	return nil
}
