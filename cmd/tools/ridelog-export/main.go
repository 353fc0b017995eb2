// Command ridelog-export writes the tar.gz bundle of a finished
// measurement: metadata JSON plus the raw binary point files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ridelog-data/ridelog/internal/db"
	"github.com/ridelog-data/ridelog/internal/export"
)

var (
	dbPath        = flag.String("db", "data/ridelog.db", "Path to the metadata database")
	dataDir       = flag.String("data", "data", "Data directory holding the measurement files")
	measurementID = flag.Int64("measurement", 0, "Measurement ID to export")
	output        = flag.String("out", "", "Output path (default measurement-<id>.tar.gz)")
)

func main() {
	flag.Parse()

	if *measurementID == 0 {
		log.Fatal("A -measurement ID is required")
	}
	out := *output
	if out == "" {
		out = fmt.Sprintf("measurement-%d.tar.gz", *measurementID)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	deviceID, err := database.DeviceIdentifier()
	if err != nil {
		log.Fatalf("Failed to read device identifier: %v", err)
	}

	f, err := os.Create(out)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	measurementDir := filepath.Join(*dataDir, "measurements", strconv.FormatInt(*measurementID, 10))
	exporter := export.NewExporter(database, nil)
	if err := exporter.WriteBundle(f, *measurementID, measurementDir, deviceID); err != nil {
		os.Remove(out)
		log.Fatalf("Export failed: %v", err)
	}
	log.Printf("Wrote %s", out)
}
