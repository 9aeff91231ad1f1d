package fetcher

import (
	"context"

	"stellar-insights/internal/storage"
)

// StartOfHistory is the position that asks the source for its oldest retained record.
const StartOfHistory = ""

// Batch is one page of payments plus the position to resume after it.
type Batch struct {
	Records []storage.PaymentRecord
	// Next equals the requested position when the source had nothing new.
	Next string
	// Full reports that the source returned a complete page and more may follow.
	Full bool
}

// PaymentSource retrieves payments strictly after an opaque position, oldest first.
type PaymentSource interface {
	FetchSince(ctx context.Context, position string) (Batch, error)
}
