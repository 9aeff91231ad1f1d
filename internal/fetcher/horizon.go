package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-insights/internal/storage"
)

const (
	horizonPaymentsPath = "/payments"
	maxHorizonPageLimit = 200
)

// HorizonOptions parameterise the Horizon payments fetcher.
type HorizonOptions struct {
	BaseURL   string
	PageLimit int
	Timeout   time.Duration
	UserAgent string
}

// Horizon pages through the Horizon /payments endpoint.
type Horizon struct {
	opts    HorizonOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHorizon constructs a Horizon payments fetcher.
func NewHorizon(opts HorizonOptions, logger zerolog.Logger) *Horizon {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.PageLimit <= 0 || opts.PageLimit > maxHorizonPageLimit {
		opts.PageLimit = maxHorizonPageLimit
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://horizon.stellar.org"
	}

	return &Horizon{
		opts:    opts,
		logger:  logger.With().Str("component", "horizon_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchSince returns the page of payments after position in ascending order.
func (h *Horizon) FetchSince(ctx context.Context, position string) (Batch, error) {
	query := url.Values{}
	query.Set("order", "asc")
	query.Set("limit", strconv.Itoa(h.opts.PageLimit))
	query.Set("include_failed", "true")
	if position != StartOfHistory {
		query.Set("cursor", position)
	}

	endpoint := h.baseURL + horizonPaymentsPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Batch{}, err
	}
	req.Header.Set("Accept", "application/hal+json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "stellar-insights/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Batch{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Batch{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Batch{}, parseHTTPError(resp.StatusCode, payload)
	}

	var page paymentsPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return Batch{}, fmt.Errorf("decode payments page: %w", err)
	}

	records := page.Embedded.Records
	batch := Batch{
		Records: make([]storage.PaymentRecord, 0, len(records)),
		Next:    position,
		Full:    len(records) >= h.opts.PageLimit,
	}
	skipped := 0
	for _, rec := range records {
		if rec.PagingToken != "" {
			batch.Next = rec.PagingToken
		}
		payment, ok, err := rec.toPayment()
		if err != nil {
			return Batch{}, fmt.Errorf("map payment %s: %w", rec.ID, err)
		}
		if !ok {
			skipped++
			continue
		}
		batch.Records = append(batch.Records, payment)
	}

	h.logger.Debug().
		Str("cursor", position).
		Str("next", batch.Next).
		Int("records", len(batch.Records)).
		Int("skipped", skipped).
		Msg("fetched payments page")

	return batch, nil
}

type paymentsPage struct {
	Embedded struct {
		Records []paymentRecord `json:"records"`
	} `json:"_embedded"`
}

type paymentRecord struct {
	ID                    string `json:"id"`
	PagingToken           string `json:"paging_token"`
	TransactionSuccessful *bool  `json:"transaction_successful"`
	SourceAccount         string `json:"source_account"`
	Type                  string `json:"type"`
	CreatedAt             string `json:"created_at"`
	TransactionHash       string `json:"transaction_hash"`

	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
	From        string `json:"from"`
	FromMuxed   string `json:"from_muxed"`
	To          string `json:"to"`
	ToMuxed     string `json:"to_muxed"`
	Amount      string `json:"amount"`

	SourceAssetType   string `json:"source_asset_type"`
	SourceAssetCode   string `json:"source_asset_code"`
	SourceAssetIssuer string `json:"source_asset_issuer"`

	Funder          string `json:"funder"`
	Account         string `json:"account"`
	StartingBalance string `json:"starting_balance"`
}

func (r paymentRecord) toPayment() (storage.PaymentRecord, bool, error) {
	var (
		source, destination, amount string
		asset, sourceAsset          storage.Asset
	)

	switch r.Type {
	case "payment":
		source, destination, amount = pick(r.FromMuxed, r.From), pick(r.ToMuxed, r.To), r.Amount
		asset = storage.Asset{Type: r.AssetType, Code: r.AssetCode, Issuer: r.AssetIssuer}
		sourceAsset = asset
	case "path_payment_strict_send", "path_payment_strict_receive":
		source, destination, amount = pick(r.FromMuxed, r.From), pick(r.ToMuxed, r.To), r.Amount
		asset = storage.Asset{Type: r.AssetType, Code: r.AssetCode, Issuer: r.AssetIssuer}
		sourceAsset = storage.Asset{Type: r.SourceAssetType, Code: r.SourceAssetCode, Issuer: r.SourceAssetIssuer}
	case "create_account":
		source, destination, amount = pick(r.Funder, r.SourceAccount), r.Account, r.StartingBalance
		asset = storage.NativeAsset
		sourceAsset = asset
	default:
		return storage.PaymentRecord{}, false, nil
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return storage.PaymentRecord{}, false, fmt.Errorf("parse amount: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return storage.PaymentRecord{}, false, fmt.Errorf("parse created_at: %w", err)
	}

	successful := true
	if r.TransactionSuccessful != nil {
		successful = *r.TransactionSuccessful
	}

	return storage.PaymentRecord{
		ID:                 r.ID,
		TxHash:             r.TransactionHash,
		SourceAccount:      source,
		DestinationAccount: destination,
		Asset:              asset,
		SourceAsset:        sourceAsset,
		Amount:             value,
		Successful:         successful,
		CreatedAt:          createdAt.UTC(),
	}, true, nil
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

type problemResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func parseHTTPError(status int, payload []byte) error {
	var problem problemResponse
	if err := json.Unmarshal(payload, &problem); err == nil {
		if problem.Detail != "" {
			return fmt.Errorf("horizon error (%d): %s", status, problem.Detail)
		}
		if problem.Title != "" {
			return fmt.Errorf("horizon error (%d): %s", status, problem.Title)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("horizon error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("horizon error (%d)", status)
}

var _ PaymentSource = (*Horizon)(nil)
