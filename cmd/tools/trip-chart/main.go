// Command trip-chart renders the speed and altitude profile of a
// finished measurement as a standalone HTML chart, straight from the
// metadata database.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ridelog-data/ridelog/internal/db"
	"github.com/ridelog-data/ridelog/internal/motion"
)

var (
	dbPath        = flag.String("db", "data/ridelog.db", "Path to the metadata database")
	measurementID = flag.Int64("measurement", 0, "Measurement ID to chart")
	output        = flag.String("out", "trip.html", "Output HTML file")
)

func main() {
	flag.Parse()

	if *measurementID == 0 {
		log.Fatal("A -measurement ID is required")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	m, err := database.Measurement(*measurementID)
	if err != nil {
		log.Fatalf("Failed to load measurement: %v", err)
	}
	locs, err := database.Locations(*measurementID)
	if err != nil {
		log.Fatalf("Failed to load locations: %v", err)
	}
	if len(locs) == 0 {
		log.Fatalf("Measurement %d has no locations", *measurementID)
	}

	page := components.NewPage()
	page.AddCharts(speedChart(m, locs))
	if chart := altitudeChart(m, locs); chart != nil {
		page.AddCharts(chart)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("Failed to render chart: %v", err)
	}
	log.Printf("Wrote %s (%d fixes, %.1f m)", *output, len(locs), m.DistanceMeters)
}

func timeAxis(locs []motion.GeoLocation) []string {
	labels := make([]string, len(locs))
	for i, loc := range locs {
		labels[i] = time.UnixMilli(loc.TimestampMs).Format("15:04:05")
	}
	return labels
}

func speedChart(m *motion.Measurement, locs []motion.GeoLocation) *charts.Line {
	data := make([]opts.LineData, len(locs))
	for i, loc := range locs {
		speed := loc.Speed
		if math.IsNaN(speed) {
			speed = 0
		}
		data[i] = opts.LineData{Value: speed * 3.6}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trip Profile", Width: "1100px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Measurement %d: speed", m.ID),
			Subtitle: fmt.Sprintf("distance=%.1f m fixes=%d", m.DistanceMeters, len(locs)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "km/h"}),
	)
	line.SetXAxis(timeAxis(locs))
	line.AddSeries("speed", data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

// altitudeChart returns nil when no fix carries an altitude.
func altitudeChart(m *motion.Measurement, locs []motion.GeoLocation) *charts.Line {
	data := make([]opts.LineData, 0, len(locs))
	labels := make([]string, 0, len(locs))
	for _, loc := range locs {
		if !loc.HasAltitude() {
			continue
		}
		data = append(data, opts.LineData{Value: loc.Altitude})
		labels = append(labels, time.UnixMilli(loc.TimestampMs).Format("15:04:05"))
	}
	if len(data) == 0 {
		return nil
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Measurement %d: altitude", m.ID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("altitude", data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}
