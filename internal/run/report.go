package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Status is the outcome of a run.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// TimestampLayout is the layout used for start and end times in reports.
const TimestampLayout = "Monday, January 02, 2006 03:04:05 PM"

const (
	crlf   = "\r\n"
	footer = "This is an automatically generated message.  Please do not reply."
)

// LogSection is the verbatim contents of an attached log file.
type LogSection struct {
	Name    string
	Content string
}

// Report is the end-of-run summary.
type Report struct {
	RunID    string
	Task     string
	Server   string
	Fields   []Field
	Started  time.Time
	Ended    time.Time
	Elapsed  time.Duration
	Status   Status
	Errors   []Entry
	Warnings []string
	Notes    []string
	LogFiles []LogSection
}

// Finalize closes the run and builds its report. The status is Success iff
// the error log is empty. Attached log files that cannot be read are skipped.
func (c *Context) Finalize() *Report {
	end := c.now()

	c.mu.Lock()
	r := &Report{
		RunID:    c.ID,
		Task:     c.Task,
		Server:   c.Env.Host,
		Fields:   append([]Field(nil), c.fields...),
		Started:  c.Start,
		Ended:    end,
		Elapsed:  end.Sub(c.Start),
		Errors:   append([]Entry(nil), c.errors...),
		Warnings: append([]string(nil), c.warnings...),
		Notes:    append([]string(nil), c.notes...),
	}
	files := append([]string(nil), c.logFiles...)
	c.mu.Unlock()

	r.Status = StatusSuccess
	if len(r.Errors) > 0 {
		r.Status = StatusError
	}

	for _, path := range files {
		data, err := os.ReadFile(path) //nolint:gosec // G304: log paths come from config
		if err != nil {
			continue
		}
		r.LogFiles = append(r.LogFiles, LogSection{Name: filepath.Base(path), Content: string(data)})
	}
	return r
}

// Subject returns the notification subject line.
func (r *Report) Subject() string {
	return fmt.Sprintf("Scheduled Task - %s - %s", r.Task, r.Status)
}

// Render returns the notification body with CRLF line endings.
func (r *Report) Render() string {
	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteString(crlf)
	}

	line("Task: %s", r.Task)
	line("Server: %s", r.Server)
	for _, f := range r.Fields {
		line("%s: %s", f.Name, f.Value)
	}
	line("Started: %s", r.Started.Format(TimestampLayout))
	line("Terminated: %s", r.Ended.Format(TimestampLayout))
	line("Elapsed Time: %s", FormatElapsed(r.Elapsed))
	line("Status: %s", r.Status)
	if r.RunID != "" {
		line("Run ID: %s", r.RunID)
	}

	if len(r.Errors) > 0 {
		sb.WriteString(crlf)
		line("%s", sectionHeader("Error Messages"))
		for _, e := range r.Errors {
			line("%s", e.String())
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString(crlf)
		line("%s", sectionHeader("Warnings"))
		for _, w := range r.Warnings {
			line("%s", w)
		}
	}
	if len(r.Notes) > 0 {
		sb.WriteString(crlf)
		line("%s", sectionHeader("Notes"))
		for _, n := range r.Notes {
			line("%s", n)
		}
	}
	for _, s := range r.LogFiles {
		sb.WriteString(crlf)
		line("%s", sectionHeader(s.Name))
		sb.WriteString(s.Content)
		if !strings.HasSuffix(s.Content, "\n") {
			sb.WriteString(crlf)
		}
	}

	sb.WriteString(crlf)
	line("%s", footer)
	return sb.String()
}

func sectionHeader(name string) string {
	return "-------- " + name + " --------"
}

// FormatElapsed renders d as H:MM:SS with the fraction dropped, prefixed
// with a day count when d spans more than a day.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	s := fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	switch days {
	case 0:
		return s
	case 1:
		return "1 day, " + s
	default:
		return fmt.Sprintf("%d days, %s", days, s)
	}
}

// WriteErrorLog overwrites path with one line per entry.
func WriteErrorLog(path string, entries []Entry) error {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.String())
		sb.WriteString(crlf)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating error log dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil { //nolint:gosec // G306: log file is meant to be shared
		return fmt.Errorf("writing error log: %w", err)
	}
	return nil
}
