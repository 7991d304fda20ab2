package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
)

const spoolExt = ".json"

// Spool stores unsent reports on disk, one JSON file per report, named by
// capture timestamp so directory order is chronological. Data persists
// across crashes and reboots.
type Spool struct {
	dir      string
	maxFiles int
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewSpool creates a spool in dir holding at most maxFiles reports.
// The directory is created if it does not exist.
func NewSpool(dir string, maxFiles int, logger *zap.Logger) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	if maxFiles <= 0 {
		maxFiles = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spool{dir: dir, maxFiles: maxFiles, logger: logger}, nil
}

// Store writes reports to disk. If the spool would exceed its bound the
// oldest files are dropped.
func (s *Spool) Store(reports []*models.MachineReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range reports {
		if r == nil {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			s.logger.Warn("Dropping report that cannot be spooled",
				zap.Int64("timestamp", r.Timestamp),
				zap.Error(err))
			continue
		}
		name := fmt.Sprintf("%020d-%04d%s", r.Timestamp, i, spoolExt)
		if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o640); err != nil {
			return fmt.Errorf("write spool file: %w", err)
		}
	}

	files, err := s.files()
	if err != nil {
		return err
	}
	for len(files) > s.maxFiles {
		s.logger.Warn("Spool full, dropping oldest report", zap.String("file", files[0]))
		s.remove(files[0])
		files = files[1:]
	}
	return nil
}

// Drain reads all spooled reports and removes their files. Corrupted files
// are removed and logged. Reports are returned in chronological order.
func (s *Spool) Drain() ([]*models.MachineReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files()
	if err != nil {
		return nil, err
	}

	reports := make([]*models.MachineReport, 0, len(files))
	for _, name := range files {
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("Failed to read spool file",
				zap.String("file", path),
				zap.Error(err))
			continue
		}

		var r models.MachineReport
		if err := json.Unmarshal(data, &r); err != nil {
			s.logger.Warn("Failed to parse spool file, removing corrupted file",
				zap.String("file", path),
				zap.Error(err))
			s.remove(name)
			continue
		}
		reports = append(reports, &r)
		s.remove(name)
	}
	return reports, nil
}

// Count returns the number of spooled reports.
func (s *Spool) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, _ := s.files()
	return len(files)
}

// files lists spool file names in chronological order.
// Must be called with s.mu held.
func (s *Spool) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), spoolExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Must be called with s.mu held.
func (s *Spool) remove(name string) {
	path := filepath.Join(s.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove spool file",
			zap.String("file", path),
			zap.Error(err))
	}
}
