package fetcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stellar-insights/internal/muxed"
	"stellar-insights/internal/storage"
)

var simulatedNamespace = uuid.MustParse("6f1d3c2a-9b7e-4c1a-8d55-2f0e6a1b7c90")

// SimulatedOptions control the generated payment stream.
type SimulatedOptions struct {
	PageSize int
	// Start is the timestamp of the first generated payment.
	Start time.Time
	// Step separates consecutive payments.
	Step time.Duration
	// Limit caps the total number of generated payments; 0 is unbounded.
	Limit int
}

// Simulated generates a deterministic payment stream for offline runs.
type Simulated struct {
	opts     SimulatedOptions
	accounts []string
	muxed    []string
	assets   []storage.Asset
}

// NewSimulated constructs a simulated payment source.
func NewSimulated(opts SimulatedOptions) *Simulated {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.Step <= 0 {
		opts.Step = 30 * time.Second
	}

	s := &Simulated{opts: opts}
	for i := 0; i < 6; i++ {
		var seed [32]byte
		for j := range seed {
			seed[j] = byte(i*31 + j + 1)
		}
		s.accounts = append(s.accounts, muxed.AccountFromSeed(seed))
	}
	for i, base := range s.accounts[:2] {
		for id := uint64(1); id <= 3; id++ {
			addr, err := muxed.Encode(base, uint64(i)*1000+id)
			if err != nil {
				panic(err)
			}
			s.muxed = append(s.muxed, addr)
		}
	}
	issuer := s.accounts[5]
	s.assets = []storage.Asset{
		storage.NativeAsset,
		{Type: "credit_alphanum4", Code: "USDC", Issuer: issuer},
		{Type: "credit_alphanum4", Code: "EURC", Issuer: issuer},
	}
	return s
}

// FetchSince returns the next page of generated payments after position.
func (s *Simulated) FetchSince(ctx context.Context, position string) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	var last uint64
	if position != StartOfHistory {
		parsed, err := strconv.ParseUint(position, 10, 64)
		if err != nil {
			return Batch{}, fmt.Errorf("invalid simulated cursor %q: %w", position, err)
		}
		last = parsed
	}

	count := s.opts.PageSize
	if s.opts.Limit > 0 {
		remaining := s.opts.Limit - int(last)
		if remaining < count {
			count = remaining
		}
		if count < 0 {
			count = 0
		}
	}

	batch := Batch{
		Records: make([]storage.PaymentRecord, 0, count),
		Next:    position,
		Full:    count == s.opts.PageSize,
	}
	for i := 0; i < count; i++ {
		seq := last + uint64(i) + 1
		batch.Records = append(batch.Records, s.generate(seq))
		batch.Next = strconv.FormatUint(seq, 10)
	}
	return batch, nil
}

func (s *Simulated) generate(seq uint64) storage.PaymentRecord {
	n := int(seq)
	source := s.accounts[n%4]
	destination := s.accounts[(n+1)%4]
	switch n % 5 {
	case 0:
		source = s.muxed[n%len(s.muxed)]
	case 1:
		destination = s.muxed[(n/5)%len(s.muxed)]
	}

	asset := s.assets[n%len(s.assets)]
	sourceAsset := asset
	if n%7 == 0 {
		sourceAsset = s.assets[(n+1)%len(s.assets)]
	}

	settlement := int64(800 + (n*137)%6000)
	return storage.PaymentRecord{
		ID:                 strconv.FormatUint(seq, 10),
		TxHash:             uuid.NewSHA1(simulatedNamespace, []byte(strconv.FormatUint(seq, 10))).String(),
		SourceAccount:      source,
		DestinationAccount: destination,
		Asset:              asset,
		SourceAsset:        sourceAsset,
		Amount:             decimal.New(int64(1+n%250)*10_000_000+int64(n%10_000_000), -7),
		Successful:         n%11 != 0,
		SettlementMs:       &settlement,
		CreatedAt:          s.opts.Start.Add(time.Duration(seq-1) * s.opts.Step).UTC(),
	}
}

var _ PaymentSource = (*Simulated)(nil)
