// Package hostctl wraps the Windows command-line tools used to control
// scheduled tasks, services and open network files on remote servers.
//
// All parsing of tool output lives here. Callers see typed results only.
package hostctl

import (
	"regexp"
	"strings"
)

// State is a Windows service state as reported by sc.
type State string

const (
	Stopped      State = "STOPPED"
	StartPending State = "START_PENDING"
	StopPending  State = "STOP_PENDING"
	Running      State = "RUNNING"
)

// Active reports whether the service is running or on its way up.
func (s State) Active() bool {
	return s == Running || s == StartPending
}

var (
	schtasksSuccessRe = regexp.MustCompile(`^SUCCESS.*$`)
	scServiceNameRe   = regexp.MustCompile(`^\s*SERVICE_NAME:\s+(\S.*\S)\s*$`)
	scStateRe         = regexp.MustCompile(`^\s*STATE\s*:\s*\d+\s+(\S+)\s*$`)
	openFilesRe       = regexp.MustCompile(`\A"(.*)","(.*)","(.*)","(.*)","(.*)","(.*)","(.*)"\z`)
)

// ParseSchTasksOutput reports whether schtasks printed a SUCCESS line.
func ParseSchTasksOutput(lines []string) bool {
	for _, l := range lines {
		if schtasksSuccessRe.MatchString(l) {
			return true
		}
	}
	return false
}

// ParseSCOutput maps service names to states. A STATE line is attributed
// to the most recent SERVICE_NAME line; STATE lines with no preceding name
// are ignored.
func ParseSCOutput(lines []string) map[string]State {
	states := make(map[string]State)
	service := ""
	for _, l := range lines {
		if m := scServiceNameRe.FindStringSubmatch(l); m != nil {
			service = m[1]
		}
		if m := scStateRe.FindStringSubmatch(l); m != nil {
			if service != "" {
				states[service] = State(m[1])
			}
			service = ""
		}
	}
	return states
}

// OpenFile is one row of openfiles /query /fo csv /v.
type OpenFile struct {
	Host       string
	ID         string
	AccessedBy string
	Type       string
	Locks      string
	OpenMode   string
	Path       string
}

// ParseOpenFilesCSV extracts the rows of verbose CSV openfiles output.
// The header row is skipped; informational lines do not match.
func ParseOpenFilesCSV(lines []string) []OpenFile {
	var files []OpenFile
	for _, l := range lines {
		m := openFilesRe.FindStringSubmatch(strings.TrimRight(l, "\r"))
		if m == nil {
			continue
		}
		if m[2] == "ID" && m[1] == "Hostname" {
			continue
		}
		files = append(files, OpenFile{
			Host:       m[1],
			ID:         m[2],
			AccessedBy: m[3],
			Type:       m[4],
			Locks:      m[5],
			OpenMode:   m[6],
			Path:       m[7],
		})
	}
	return files
}
