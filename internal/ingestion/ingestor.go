// Package ingestion pulls payments from a source into storage behind a per-task cursor.
package ingestion

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"stellar-insights/internal/fetcher"
	"stellar-insights/internal/metrics"
	"stellar-insights/internal/storage"
)

// Store is the persistence the ingestor needs.
type Store interface {
	storage.CursorStore
	SavePayments(ctx context.Context, payments []storage.PaymentRecord) (int, error)
}

// Options tune a run.
type Options struct {
	// StartCursor is used when the task has no stored cursor.
	StartCursor string
	// MaxBatches bounds the pages pulled in one run.
	MaxBatches int
}

// Result summarises one run.
type Result struct {
	Fetched         int
	Inserted        int
	Batches         int
	Cursor          string
	LatestCreatedAt time.Time
}

// Ingestor advances a task cursor in write-then-advance order.
type Ingestor struct {
	source  fetcher.PaymentSource
	store   Store
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New constructs an Ingestor.
func New(source fetcher.PaymentSource, store Store, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Ingestor {
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = 1
	}
	return &Ingestor{
		source:  source,
		store:   store,
		opts:    opts,
		metrics: m,
		logger:  logger.With().Str("component", "ingestor").Logger(),
	}
}

// Run pulls batches for task until the source is drained or MaxBatches is reached.
// Each batch is persisted before the cursor moves past it.
func (i *Ingestor) Run(ctx context.Context, task string) (Result, error) {
	position, ok, err := i.store.GetCursor(ctx, task)
	if err != nil {
		return Result{}, i.fail(persistErr(task, fmt.Errorf("read cursor: %w", err)))
	}
	if !ok {
		position = i.opts.StartCursor
	}

	res := Result{Cursor: position}
	for res.Batches < i.opts.MaxBatches {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		batch, err := i.source.FetchSince(ctx, position)
		if err != nil {
			return res, i.fail(remoteErr(task, err))
		}
		if err := checkMonotonic(position, batch.Next); err != nil {
			return res, i.fail(remoteErr(task, err))
		}

		inserted, err := i.store.SavePayments(ctx, batch.Records)
		if err != nil {
			return res, i.fail(persistErr(task, fmt.Errorf("save payments: %w", err)))
		}

		if batch.Next != "" && batch.Next != position {
			if err := i.store.SetCursor(ctx, task, batch.Next); err != nil {
				return res, i.fail(persistErr(task, fmt.Errorf("advance cursor: %w", err)))
			}
		}

		res.Batches++
		res.Fetched += len(batch.Records)
		res.Inserted += inserted
		for _, rec := range batch.Records {
			if rec.CreatedAt.After(res.LatestCreatedAt) {
				res.LatestCreatedAt = rec.CreatedAt
			}
		}
		i.metrics.AddIngested(inserted)

		advanced := batch.Next != "" && batch.Next != position
		if advanced {
			position = batch.Next
			res.Cursor = position
		}

		i.logger.Debug().
			Str("task", task).
			Str("cursor", res.Cursor).
			Int("fetched", len(batch.Records)).
			Int("inserted", inserted).
			Msg("batch persisted")

		if !batch.Full || !advanced {
			break
		}
	}

	i.logger.Info().
		Str("task", task).
		Str("cursor", res.Cursor).
		Int("batches", res.Batches).
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Msg("ingestion run completed")
	return res, nil
}

func (i *Ingestor) fail(err error) error {
	if ie, ok := err.(*Error); ok {
		i.metrics.IngestionFailed(string(ie.Kind))
	}
	return err
}

// checkMonotonic rejects a numeric paging token that moves backwards.
func checkMonotonic(current, next string) error {
	if current == "" || next == "" {
		return nil
	}
	cur, err := strconv.ParseUint(current, 10, 64)
	if err != nil {
		return nil
	}
	nxt, err := strconv.ParseUint(next, 10, 64)
	if err != nil {
		return nil
	}
	if nxt < cur {
		return fmt.Errorf("batch cursor %s precedes current position %s", next, current)
	}
	return nil
}
