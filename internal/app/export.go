package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"feed-sentinel/internal/sentinel"
	"feed-sentinel/internal/storage"
)

// Export renders historical observations as CSV and/or PNG. The decay
// weighted average is recomputed per point from the observations that
// preceded it, so the chart shows the same average the breaker saw.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListObservationsBetween(ctx, a.Config.Sentinel.Pair(), from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no observations found for export window")
		return nil
	}

	lambda, err := a.Config.Sentinel.LambdaFixedPoint()
	if err != nil {
		return err
	}

	points := buildExportPoints(records, lambda)
	points = downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(points)).Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, points); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, points); err != nil {
			return err
		}
	}

	return nil
}

type exportPoint struct {
	At      time.Time
	Price   decimal.Decimal
	Average decimal.Decimal
}

func buildExportPoints(records []storage.ObservationRecord, lambda sdkmath.Int) []exportPoint {
	observations := make([]sentinel.Observation, 0, len(records))
	points := make([]exportPoint, 0, len(records))

	for _, rec := range records {
		observations = append(observations, sentinel.Observation{
			Price:     sdkmath.NewIntFromBigInt(rec.Price.BigInt()),
			Timestamp: uint64(rec.ObservedAt.Unix()),
		})

		point := exportPoint{At: rec.ObservedAt, Price: rec.Price}
		avg, err := sentinel.ComputeEWTWAP(observations, lambda, uint64(rec.ObservedAt.Unix()))
		if err != nil {
			point.Average = rec.Price
		} else {
			point.Average = decimal.NewFromBigInt(avg.BigInt(), 0)
		}
		points = append(points, point)
	}
	return points
}

func downsamplePoints(points []exportPoint, max int) []exportPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]exportPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []exportPoint) error {
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

	header := []string{"observed_at", "price", "ewtwap"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, point := range points {
		record := []string{
			point.At.UTC().Format(time.RFC3339),
			point.Price.String(),
			point.Average.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePointsPNG(path string, points []exportPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	price := make([]float64, len(points))
	average := make([]float64, len(points))

	for i, point := range points {
		x[i] = point.At
		price[i] = point.Price.InexactFloat64()
		average[i] = point.Average.InexactFloat64()
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (feed units)",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Spot",
				XValues: x,
				YValues: price,
			},
			chart.TimeSeries{
				Name:    "EWTWAP",
				XValues: x,
				YValues: average,
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
