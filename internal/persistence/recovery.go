package persistence

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ridelog-data/ridelog/internal/monitoring"
	"github.com/ridelog-data/ridelog/internal/motion"
)

// MarkCorrupted is the startup recovery pass. A crash leaves the last
// measurement Open with possibly half-written point files; this scans
// every Open measurement, validates its binary files and moves the
// directory of any damaged one into the quarantine after marking the
// measurement Corrupted. A measurement without a directory yet is a
// fresh one and stays untouched.
//
// Run it before the first lifecycle call; it is not safe to run
// concurrently with capture.
func (s *Service) MarkCorrupted() error {
	open, err := s.store.MeasurementsByStatus(motion.StatusOpen)
	if err != nil {
		return fmt.Errorf("query open measurements: %w", err)
	}

	for _, m := range open {
		ok, err := s.validateMeasurementFiles(m.ID)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := s.store.SetStatus(m.ID, motion.StatusCorrupted); err != nil {
			return fmt.Errorf("mark measurement %d corrupted: %w", m.ID, err)
		}
		if err := s.quarantine(m.ID); err != nil {
			return err
		}
		monitoring.Logf("persistence: measurement %d failed validation, quarantined", m.ID)
	}
	return nil
}

// validateMeasurementFiles checks every .bin file in the measurement
// directory for a readable header and whole records.
func (s *Service) validateMeasurementFiles(id int64) (bool, error) {
	dir := s.MeasurementDir(id)
	if !s.fs.Exists(dir) {
		return true, nil
	}
	names, err := s.fs.ListDir(dir)
	if err != nil {
		return false, fmt.Errorf("list measurement %d directory: %w", id, err)
	}
	for _, name := range names {
		if !strings.HasSuffix(name, ".bin") {
			continue
		}
		if err := ValidateFile(s.fs, filepath.Join(dir, name)); err != nil {
			monitoring.Logf("persistence: measurement %d file %s invalid: %v", id, name, err)
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) quarantine(id int64) error {
	dst := s.quarantineDir(id)
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create quarantine directory: %w", err)
	}
	if err := s.fs.Rename(s.MeasurementDir(id), dst); err != nil {
		return fmt.Errorf("quarantine measurement %d: %w", id, err)
	}
	return nil
}
