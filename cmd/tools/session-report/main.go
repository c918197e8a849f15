// Command session-report renders an HTML chart of density over time for a
// recorded scan session, from the telemetry database.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/haptic-histology/tissue.scanner/internal/telemetry"
)

var (
	dbPath    = flag.String("db", "telemetry.db", "Path to the telemetry SQLite database")
	sessionID = flag.String("session", "", "Session ID to chart (default: latest)")
	outPath   = flag.String("out", "session-report.html", "Output HTML path")
	maxPoints = flag.Int("max-points", 20000, "Maximum samples to chart")
)

func main() {
	flag.Parse()

	store, err := telemetry.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open telemetry db: %v", err)
	}
	defer store.Close()

	id := *sessionID
	if id == "" {
		id, err = store.LatestSessionID()
		if err != nil {
			log.Fatalf("failed to resolve session: %v", err)
		}
	}

	samples, err := store.Samples(id, *maxPoints)
	if err != nil {
		log.Fatalf("failed to load samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatalf("session %s has no samples", id)
	}

	start := samples[0].TSUnixNanos
	xs := make([]string, len(samples))
	density := make([]opts.LineData, len(samples))
	gradient := make([]opts.LineData, len(samples))
	for i, sm := range samples {
		secs := float64(sm.TSUnixNanos-start) / 1e9
		xs[i] = fmt.Sprintf("%.2f", secs)
		density[i] = opts.LineData{Value: sm.Density}
		gradient[i] = opts.LineData{Value: sm.Gradient}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan Session Report", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Haptic density over time", Subtitle: fmt.Sprintf("session=%s samples=%d", id, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seconds"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "density"}),
	)
	line.SetXAxis(xs).
		AddSeries("density", density).
		AddSeries("edge gradient", gradient)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *outPath, err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("wrote %s", *outPath)
}
