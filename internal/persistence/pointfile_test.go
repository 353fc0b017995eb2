package persistence

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ridelog-data/ridelog/internal/fsutil"
	"github.com/ridelog-data/ridelog/internal/motion"
	"github.com/ridelog-data/ridelog/internal/testutil"
)

func TestPointFileAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	osFS := fsutil.OSFileSystem{}

	w, err := OpenPointFile(dir, motion.Accelerometer)
	testutil.AssertNoError(t, err)

	first := []motion.Point3D{
		testutil.Point(1000, 0.1, 9.8, 0.2),
		testutil.Point(1010, 0.2, 9.7, 0.1),
	}
	second := []motion.Point3D{
		testutil.Point(1020, -0.3, 9.9, 0.0),
	}
	testutil.AssertNoError(t, w.Append(first))
	testutil.AssertNoError(t, w.Append(second))
	testutil.AssertNoError(t, w.Close())

	got, err := ReadPointFile(osFS, w.Path())
	testutil.AssertNoError(t, err)
	if len(got) != 3 {
		t.Fatalf("read %d points, want 3", len(got))
	}
	want := append(first, second...)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPointFileReopenAppends(t *testing.T) {
	// Reopening a file must continue appending after the existing
	// records, not write a second header.
	dir := t.TempDir()
	osFS := fsutil.OSFileSystem{}

	w, err := OpenPointFile(dir, motion.Gyroscope)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.Append([]motion.Point3D{testutil.Point(1, 1, 2, 3)}))
	testutil.AssertNoError(t, w.Close())

	w, err = OpenPointFile(dir, motion.Gyroscope)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.Append([]motion.Point3D{testutil.Point(2, 4, 5, 6)}))
	testutil.AssertNoError(t, w.Close())

	got, err := ReadPointFile(osFS, w.Path())
	testutil.AssertNoError(t, err)
	if len(got) != 2 {
		t.Fatalf("read %d points after reopen, want 2", len(got))
	}
}

func TestPointFileAppendAfterClose(t *testing.T) {
	w, err := OpenPointFile(t.TempDir(), motion.Accelerometer)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.Close())

	if err := w.Append([]motion.Point3D{testutil.Point(1, 0, 0, 0)}); err == nil {
		t.Fatal("append on closed writer must fail")
	}
}

func TestLocationFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	osFS := fsutil.OSFileSystem{}

	w, err := OpenLocationFile(dir)
	testutil.AssertNoError(t, err)

	locs := []motion.GeoLocation{
		testutil.Fix(2000, 51.05, 13.72),
		testutil.Fix(3000, 51.06, 13.73),
	}
	testutil.AssertNoError(t, w.Append(locs))
	testutil.AssertNoError(t, w.Close())

	got, err := ReadLocationFile(osFS, w.Path())
	testutil.AssertNoError(t, err)
	if len(got) != 2 {
		t.Fatalf("read %d locations, want 2", len(got))
	}
	for i, l := range got {
		if l.TimestampMs != locs[i].TimestampMs ||
			l.Latitude != locs[i].Latitude ||
			l.Longitude != locs[i].Longitude ||
			l.Speed != locs[i].Speed {
			t.Errorf("location %d = %+v, want %+v", i, l, locs[i])
		}
	}
}

func TestValidateFile(t *testing.T) {
	header := encodeHeader(byte(motion.Accelerometer))
	record := make([]byte, point3DRecordSize)
	locHeader := encodeHeader(locationKindByte)
	locRecord := make([]byte, locationRecordSize)
	badVersion := encodeHeader(byte(motion.Accelerometer))
	badVersion[4] = byte(motion.FileFormatVersion + 1)
	badVersion[5] = 0

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{"header only", header, ""},
		{"whole records", append(append([]byte{}, header...), append(record, record...)...), ""},
		{"whole location records", append(append([]byte{}, locHeader...), locRecord...), ""},
		{"empty file", nil, "shorter than header"},
		{"short header", header[:5], "shorter than header"},
		{"bad magic", append([]byte("XXXX"), header[4:]...), "bad magic"},
		{"future version", badVersion, "unsupported file format version"},
		{"truncated record", append(append([]byte{}, header...), record[:point3DRecordSize-3]...), "truncated record"},
	}

	memFS := fsutil.NewMemoryFileSystem()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join("m", tt.name+".bin")
			testutil.AssertNoError(t, memFS.WriteFile(path, tt.data, 0o644))

			err := ValidateFile(memFS, path)
			if tt.wantErr == "" {
				testutil.AssertNoError(t, err)
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadLocationFileMarksMissingVerticalAccuracy(t *testing.T) {
	dir := t.TempDir()

	w, err := OpenLocationFile(dir)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.Append([]motion.GeoLocation{testutil.Fix(1, 50, 13)}))
	testutil.AssertNoError(t, w.Close())

	got, err := ReadLocationFile(fsutil.OSFileSystem{}, w.Path())
	testutil.AssertNoError(t, err)
	if !math.IsNaN(got[0].VerticalAccuracy) {
		t.Error("vertical accuracy is not stored in the file and must read back as NaN")
	}
}

func TestOpenPointFileCreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "measurements", "7")

	w, err := OpenPointFile(dir, motion.Magnetometer)
	testutil.AssertNoError(t, err)
	defer w.Close()

	if _, err := os.Stat(filepath.Join(dir, "directions.bin")); err != nil {
		t.Fatalf("point file not created under measurement directory: %v", err)
	}
}
