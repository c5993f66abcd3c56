package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

var runLogPattern = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2}).*\.log$`)

// PruneOldLogs deletes run logs in dir whose date prefix is more than
// retention before now. Only the date is compared. It returns the deleted
// paths; the first error stops the sweep.
func PruneOldLogs(dir string, retention time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing log dir: %w", err)
	}

	var deleted []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		logDate, ok := logFileDate(e.Name(), now.Location())
		if !ok {
			continue
		}
		if now.Sub(logDate) <= retention {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			return deleted, fmt.Errorf("deleting %s: %w", e.Name(), err)
		}
		deleted = append(deleted, path)
	}
	return deleted, nil
}

func logFileDate(name string, loc *time.Location) (time.Time, bool) {
	m := runLogPattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
}
