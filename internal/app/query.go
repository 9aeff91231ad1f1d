package app

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"stellar-insights/internal/analytics"
	"stellar-insights/internal/service"
	"stellar-insights/internal/validation"
)

// Corridors lists corridors over a range, filtered by success rate and volume.
func (a *App) Corridors(ctx context.Context, opts CorridorOptions) error {
	filters := validation.CorridorFilters{
		SuccessRateMin: opts.SuccessRateMin,
		SuccessRateMax: opts.SuccessRateMax,
		VolumeMin:      opts.VolumeMin,
		VolumeMax:      opts.VolumeMax,
	}
	if err := filters.Validate(); err != nil {
		return err
	}

	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	corridors, err := svc.CorridorMetrics(ctx, service.CorridorQuery{From: opts.From, To: opts.To, Filters: filters})
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(corridors) > opts.Limit {
		corridors = corridors[:opts.Limit]
	}
	if opts.JSON {
		return a.writeJSON(corridors)
	}
	if len(corridors) == 0 {
		fmt.Fprintln(a.Out, "no corridors matched")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Corridor\tVolume\tTxs\tSuccess%\tAvg settle ms\tHours")
	for _, c := range corridors {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%.2f\t%.0f\t%d\n",
			c.CorridorKey, formatDecimal(c.Volume, 7), c.TxCount, c.SuccessRate, c.AvgSettlementMs, c.Hours)
	}
	return writer.Flush()
}

// Muxed prints the multiplexed address report.
func (a *App) Muxed(ctx context.Context, opts MuxedOptions) error {
	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	report, err := svc.MuxedAnalytics(ctx, a.Config.ResolveTopN(opts.TopN))
	if err != nil {
		return err
	}
	if opts.JSON {
		return a.writeJSON(report)
	}

	fmt.Fprintf(a.Out, "muxed payments: %d\nunique muxed addresses: %d\nbase accounts: %d\n\n",
		report.TotalMuxedPayments, report.UniqueMuxedAddresses, len(report.BaseAccountsWithMuxed))
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Address\tBase account\tID\tAs source\tAs destination\tTotal")
	for _, u := range report.TopMuxedByActivity {
		base, id := "-", "-"
		if u.BaseAccount != nil {
			base = *u.BaseAccount
		}
		if u.MuxedID != nil {
			id = fmt.Sprintf("%d", *u.MuxedID)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d\t%d\n",
			u.AccountAddress, base, id, u.CountAsSource, u.CountAsDestination, u.TotalPayments)
	}
	return writer.Flush()
}

// Score scores either raw counters or, with an account, that account's stored payments.
func (a *App) Score(ctx context.Context, opts ScoreOptions) error {
	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	if opts.History {
		return a.scoreHistory(ctx, svc, opts)
	}

	var (
		snap   analytics.Snapshot
		volume *decimal.Decimal
	)
	if opts.Account != "" {
		anchor, err := svc.AnchorSnapshot(ctx, opts.Account, opts.From, opts.To)
		if err != nil {
			return err
		}
		snap, volume = anchor.Metrics, &anchor.Volume
		if opts.JSON {
			return a.writeJSON(anchor)
		}
	} else {
		snap, err = svc.Score(analytics.Counters{
			Total:           opts.Total,
			Successful:      opts.Successful,
			Failed:          opts.Failed,
			AvgSettlementMs: opts.AvgSettlementMs,
		})
		if err != nil {
			return err
		}
		if opts.JSON {
			return a.writeJSON(snap)
		}
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Transactions\t%d (%d ok, %d failed)\n", snap.Total, snap.Successful, snap.Failed)
	if volume != nil {
		fmt.Fprintf(writer, "Volume\t%s\n", formatDecimal(*volume, 7))
	}
	if snap.AvgSettlementMs != nil {
		fmt.Fprintf(writer, "Avg settlement\t%.0f ms\n", *snap.AvgSettlementMs)
	}
	fmt.Fprintf(writer, "Success rate\t%.2f%%\n", snap.SuccessRate)
	fmt.Fprintf(writer, "Failure rate\t%.2f%%\n", snap.FailureRate)
	fmt.Fprintf(writer, "Reliability\t%.2f\n", snap.ReliabilityScore)
	fmt.Fprintf(writer, "Status\t%s\n", snap.Status)
	return writer.Flush()
}

func (a *App) scoreHistory(ctx context.Context, svc *service.Service, opts ScoreOptions) error {
	history, err := svc.AnchorHistory(ctx, opts.Account, opts.Limit)
	if err != nil {
		return err
	}
	if opts.JSON {
		return a.writeJSON(history)
	}
	if len(history) == 0 {
		fmt.Fprintf(a.Out, "no snapshots recorded for %s\n", opts.Account)
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Recorded (UTC)\tWindow\tTxs\tSuccess%\tReliability\tStatus")
	for _, h := range history {
		fmt.Fprintf(writer, "%s\t%s..%s\t%d\t%.2f\t%.2f\t%s\n",
			h.RecordedAt.UTC().Format(time.RFC3339),
			h.WindowStart.UTC().Format(time.RFC3339),
			h.WindowEnd.UTC().Format(time.RFC3339),
			h.TotalTransactions, h.SuccessRate, h.ReliabilityScore, h.Status)
	}
	return writer.Flush()
}

// Payments prints stored payments looked up by id.
func (a *App) Payments(ctx context.Context, opts PaymentsOptions) error {
	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	payments, err := svc.Payments(ctx, opts.IDs)
	if err != nil {
		return err
	}
	if opts.JSON {
		return a.writeJSON(payments)
	}

	found := make(map[string]struct{}, len(payments))
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tCreated (UTC)\tSource\tDestination\tCorridor\tAmount\tOK\tSettle ms")
	for _, p := range payments {
		found[p.ID] = struct{}{}
		settle := "-"
		if p.SettlementMs != nil {
			settle = fmt.Sprintf("%d", *p.SettlementMs)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			p.ID, p.CreatedAt.UTC().Format(time.RFC3339), p.SourceAccount, p.DestinationAccount,
			p.CorridorKey(), formatDecimal(p.Amount, 7), p.Successful, settle)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	for _, id := range opts.IDs {
		if _, ok := found[id]; !ok && id != "" {
			found[id] = struct{}{}
			fmt.Fprintf(a.Out, "not found: %s\n", id)
		}
	}
	return nil
}

func (a *App) writeJSON(v any) error {
	encoder := json.NewEncoder(a.Out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
