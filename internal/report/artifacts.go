package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const artifactSuffix = ".csv"

// Artifact is a completed report file on disk.
type Artifact struct {
	ReportID string
	Path     string
	Size     int64
	ModTime  time.Time
}

// Artifacts stores report CSVs and enforces retention.
type Artifacts struct {
	baseDir       string
	retentionDays int
	maxTotalBytes int64
}

// NewArtifacts creates an artifact manager rooted at baseDir.
func NewArtifacts(baseDir string, retentionDays int, maxTotalBytes int64) *Artifacts {
	return &Artifacts{
		baseDir:       baseDir,
		retentionDays: retentionDays,
		maxTotalBytes: maxTotalBytes,
	}
}

// BaseDir returns the artifact directory.
func (m *Artifacts) BaseDir() string {
	return m.baseDir
}

// Path returns the CSV path for a report.
func (m *Artifacts) Path(reportID string) string {
	return filepath.Join(m.baseDir, "report_"+sanitizeSegment(reportID)+artifactSuffix)
}

// Write stores rows as the report's CSV. The file appears atomically.
func (m *Artifacts) Write(reportID string, rows []Row) (*Artifact, error) {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(m.baseDir, ".report-*.tmp")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := WriteCSV(tmp, rows); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	path := m.Path(reportID)
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, err
	}
	return m.Stat(reportID, path)
}

// Stat describes an existing artifact. Missing files yield os.ErrNotExist.
func (m *Artifacts) Stat(reportID, path string) (*Artifact, error) {
	if path == "" {
		path = m.Path(reportID)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		ReportID: reportID,
		Path:     path,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}

// Rows reads an artifact back.
func (m *Artifacts) Rows(a *Artifact) ([]Row, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// Cleanup removes artifacts older than the retention period and then the
// oldest ones until the total size fits. It returns the number removed.
func (m *Artifacts) Cleanup() (int, error) {
	var cutoff time.Time
	if m.retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -m.retentionDays)
	}

	type fileInfo struct {
		path    string
		size    int64
		modTime time.Time
	}

	var files []fileInfo
	removed := 0

	err := filepath.WalkDir(m.baseDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, artifactSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if !cutoff.IsZero() && info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
			return nil
		}

		files = append(files, fileInfo{
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return removed, nil
		}
		return removed, err
	}

	if m.maxTotalBytes <= 0 {
		return removed, nil
	}

	var total int64
	for _, f := range files {
		total += f.size
	}
	if total <= m.maxTotalBytes {
		return removed, nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files {
		if total <= m.maxTotalBytes {
			break
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			continue
		}
		removed++
		total -= f.size
	}

	return removed, nil
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(value))
	for _, ch := range value {
		isLower := ch >= 'a' && ch <= 'z'
		isUpper := ch >= 'A' && ch <= 'Z'
		isDigit := ch >= '0' && ch <= '9'
		if isLower || isUpper || isDigit || ch == '-' || ch == '_' {
			b.WriteRune(ch)
			continue
		}
		b.WriteByte('_')
	}
	result := strings.Trim(b.String(), "_")
	if result == "" {
		return "unknown"
	}
	return result
}
