package fetcher

import (
	"context"
	"testing"
	"time"

	"stellar-insights/internal/muxed"
)

func TestSimulatedIsDeterministicAndPaged(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	src := NewSimulated(SimulatedOptions{PageSize: 10, Start: start, Step: time.Minute, Limit: 25})
	ctx := context.Background()

	first, err := src.FetchSince(ctx, StartOfHistory)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(first.Records) != 10 || first.Next != "10" || !first.Full {
		t.Fatalf("unexpected first page: %d records, next %q", len(first.Records), first.Next)
	}
	if !first.Records[0].CreatedAt.Equal(start) {
		t.Fatalf("unexpected first timestamp %s", first.Records[0].CreatedAt)
	}

	again, err := NewSimulated(SimulatedOptions{PageSize: 10, Start: start, Step: time.Minute, Limit: 25}).FetchSince(ctx, StartOfHistory)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for i := range first.Records {
		if first.Records[i].TxHash != again.Records[i].TxHash || first.Records[i].SourceAccount != again.Records[i].SourceAccount {
			t.Fatalf("record %d differs between runs", i)
		}
	}

	last, err := src.FetchSince(ctx, "20")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(last.Records) != 5 || last.Next != "25" || last.Full {
		t.Fatalf("unexpected tail page: %d records next %q", len(last.Records), last.Next)
	}

	done, err := src.FetchSince(ctx, "25")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(done.Records) != 0 || done.Next != "25" {
		t.Fatalf("exhausted source should return an empty page at the same position")
	}
}

func TestSimulatedEmitsDecodableMuxedAddresses(t *testing.T) {
	src := NewSimulated(SimulatedOptions{PageSize: 20})
	batch, err := src.FetchSince(context.Background(), StartOfHistory)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	found := 0
	for _, rec := range batch.Records {
		for _, addr := range []string{rec.SourceAccount, rec.DestinationAccount} {
			if !muxed.IsMuxed(addr) {
				continue
			}
			if _, ok := (muxed.StrkeyDecoder{}).Decode(addr); !ok {
				t.Fatalf("generated muxed address %s does not decode", addr)
			}
			found++
		}
	}
	if found == 0 {
		t.Fatal("expected generated muxed activity")
	}
}

func TestSimulatedRejectsBadCursor(t *testing.T) {
	if _, err := NewSimulated(SimulatedOptions{}).FetchSince(context.Background(), "abc"); err == nil {
		t.Fatal("non-numeric cursor should be rejected")
	}
}
