package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"stellar-insights/internal/storage"
)

const defaultExportWindow = 30 * 24 * time.Hour

// hourPoint is the all-corridor (or single corridor) total of one hour.
type hourPoint struct {
	Hour         time.Time
	Volume       decimal.Decimal
	TxCount      int64
	SuccessCount int64
}

func (p hourPoint) successRate() float64 {
	if p.TxCount == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.TxCount) * 100
}

// Export renders hourly corridor metrics as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	buckets, err := svc.HourlyMetrics(ctx, from, to)
	if err != nil {
		return err
	}
	if opts.Corridor != "" {
		buckets = filterCorridor(buckets, opts.Corridor)
	}
	if len(buckets) == 0 {
		a.Logger.Info().Msg("no hourly metrics found for export window")
		return nil
	}

	if opts.CSVPath != "" {
		rows := downsample(buckets, opts.MaxPoints)
		a.Logger.Info().Int("total", len(buckets)).Int("exported", len(rows)).Msg("exporting hourly metrics")
		if err := writeMetricsCSV(opts.CSVPath, rows); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		points := downsample(hourTotals(buckets), opts.MaxPoints)
		if err := writeMetricsPNG(opts.PNGPath, points); err != nil {
			return err
		}
	}

	return nil
}

func filterCorridor(buckets []storage.HourlyCorridorMetric, corridor string) []storage.HourlyCorridorMetric {
	out := make([]storage.HourlyCorridorMetric, 0, len(buckets))
	for _, b := range buckets {
		if b.CorridorKey == corridor {
			out = append(out, b)
		}
	}
	return out
}

func hourTotals(buckets []storage.HourlyCorridorMetric) []hourPoint {
	byHour := make(map[time.Time]*hourPoint)
	for _, b := range buckets {
		hour := b.HourBucket.UTC()
		p, ok := byHour[hour]
		if !ok {
			p = &hourPoint{Hour: hour, Volume: decimal.Zero}
			byHour[hour] = p
		}
		p.Volume = p.Volume.Add(b.Volume)
		p.TxCount += b.TxCount
		p.SuccessCount += b.SuccessCount
	}
	points := make([]hourPoint, 0, len(byHour))
	for _, p := range byHour {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Hour.Before(points[j].Hour) })
	return points
}

func downsample[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return items[len(items)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

func writeMetricsCSV(path string, buckets []storage.HourlyCorridorMetric) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"hour_bucket", "corridor_key", "volume", "tx_count", "success_count", "settled_count", "success_rate", "avg_settlement_ms"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, b := range buckets {
		rate := 0.0
		if b.TxCount > 0 {
			rate = float64(b.SuccessCount) / float64(b.TxCount) * 100
		}
		record := []string{
			b.HourBucket.UTC().Format(time.RFC3339),
			b.CorridorKey,
			b.Volume.String(),
			strconv.FormatInt(b.TxCount, 10),
			strconv.FormatInt(b.SuccessCount, 10),
			strconv.FormatInt(b.SettledCount, 10),
			strconv.FormatFloat(rate, 'f', 2, 64),
			strconv.FormatFloat(b.AvgSettlementMs, 'f', 0, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeMetricsPNG(path string, points []hourPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(points) < 2 {
		return errors.New("at least two hours of data are required to render a chart")
	}

	x := make([]time.Time, len(points))
	volume := make([]float64, len(points))
	success := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Hour
		volume[i] = p.Volume.InexactFloat64()
		success[i] = p.successRate()
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Volume",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Success (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Volume",
				XValues: x,
				YValues: volume,
			},
			chart.TimeSeries{
				Name:    "Success %",
				XValues: x,
				YValues: success,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
