// Package gdbadmin administers the enterprise geodatabase: connection
// gating, user sessions, versions and the compress/index/statistics
// maintenance calls.
package gdbadmin

import (
	"context"
	"sort"
	"strings"
	"time"
)

// User is one connected session.
type User struct {
	Name        string
	Client      string
	ID          int64
	ConnectedAt time.Time
	Direct      bool
}

// Version describes a version to create.
type Version struct {
	Name   string
	Parent string
	Access string
}

// ReconcileOptions controls ReconcilePostDelete. Every listed version is
// reconciled against Target with locks acquired, aborted on conflict,
// posted and deleted. Messages go to LogFile.
type ReconcileOptions struct {
	Target   string
	Versions []string
	LogFile  string
}

// Admin is the set of geodatabase administration calls.
type Admin interface {
	AcceptConnections(ctx context.Context, accept bool) error
	ListUsers(ctx context.Context) ([]User, error)
	DisconnectAll(ctx context.Context) error
	ListVersions(ctx context.Context) ([]string, error)
	ReconcilePostDelete(ctx context.Context, opts ReconcileOptions) error
	Compress(ctx context.Context) error
	CreateVersion(ctx context.Context, v Version) error
	RebuildIndexes(ctx context.Context, data []string) error
	AnalyzeDatasets(ctx context.Context, data []string) error
	ListData(ctx context.Context, pattern string) ([]string, error)
}

// ConnectedWindowsUsers returns the distinct lowercased user names that
// are not system accounts, sorted.
func ConnectedWindowsUsers(users []User, systemUsers []string) []string {
	system := make(map[string]bool, len(systemUsers))
	for _, s := range systemUsers {
		system[strings.ToLower(s)] = true
	}
	seen := make(map[string]bool)
	var names []string
	for _, u := range users {
		name := strings.ToLower(u.Name)
		// DOMAIN\user and quoted names as reported by SQL Server
		if i := strings.LastIndex(name, `\`); i >= 0 {
			name = name[i+1:]
		}
		name = strings.Trim(name, `"`)
		if name == "" || system[name] || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
