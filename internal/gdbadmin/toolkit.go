package gdbadmin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nnww-gis/gisops/internal/geoprocess"
)

// ToolkitAdmin implements Admin through geoprocessing calls against .sde
// connection files. AdminConn is used only to create versions.
type ToolkitAdmin struct {
	tk        *geoprocess.Toolkit
	UserConn  string
	AdminConn string
}

// NewToolkitAdmin returns an Admin for the given connection files.
func NewToolkitAdmin(tk *geoprocess.Toolkit, userConn, adminConn string) *ToolkitAdmin {
	return &ToolkitAdmin{tk: tk, UserConn: userConn, AdminConn: adminConn}
}

func (a *ToolkitAdmin) AcceptConnections(ctx context.Context, accept bool) error {
	_, err := a.tk.Call(ctx, "AcceptConnections", "workspace", a.UserConn, "accept", strconv.FormatBool(accept))
	return err
}

// ListUsers expects one session per line from the bridge:
// name, client, id, RFC 3339 connection time and direct flag, tab separated.
func (a *ToolkitAdmin) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := a.tk.CallLines(ctx, "ListUsers", "workspace", a.UserConn)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(rows))
	for _, row := range rows {
		u, err := ParseUser(row)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// ParseUser parses one ListUsers line. Only the name is required.
func ParseUser(line string) (User, error) {
	f := strings.Split(line, "\t")
	u := User{Name: strings.TrimSpace(f[0])}
	if u.Name == "" {
		return User{}, fmt.Errorf("user line %q: empty name", line)
	}
	if len(f) > 1 {
		u.Client = strings.TrimSpace(f[1])
	}
	if len(f) > 2 && strings.TrimSpace(f[2]) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(f[2]), 10, 64)
		if err != nil {
			return User{}, fmt.Errorf("user line %q: bad id: %w", line, err)
		}
		u.ID = id
	}
	if len(f) > 3 && strings.TrimSpace(f[3]) != "" {
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(f[3]))
		if err != nil {
			return User{}, fmt.Errorf("user line %q: bad connection time: %w", line, err)
		}
		u.ConnectedAt = at
	}
	if len(f) > 4 {
		u.Direct, _ = strconv.ParseBool(strings.TrimSpace(f[4]))
	}
	return u, nil
}

func (a *ToolkitAdmin) DisconnectAll(ctx context.Context) error {
	_, err := a.tk.Call(ctx, "DisconnectUser", "workspace", a.UserConn, "users", "ALL")
	return err
}

func (a *ToolkitAdmin) ListVersions(ctx context.Context) ([]string, error) {
	return a.tk.CallLines(ctx, "ListVersions", "workspace", a.UserConn)
}

func (a *ToolkitAdmin) ReconcilePostDelete(ctx context.Context, opts ReconcileOptions) error {
	_, err := a.tk.Call(ctx, "ReconcileVersions",
		"workspace", a.UserConn,
		"mode", "ALL_VERSIONS",
		"target", opts.Target,
		"versions", strings.Join(opts.Versions, ";"),
		"locks", "LOCK_ACQUIRED",
		"abort", "ABORT_CONFLICTS",
		"conflicts", "BY_ATTRIBUTE",
		"resolution", "FAVOR_EDIT_VERSION",
		"post", "POST",
		"delete", "DELETE_VERSION",
		"log", opts.LogFile,
	)
	return err
}

func (a *ToolkitAdmin) Compress(ctx context.Context) error {
	_, err := a.tk.Call(ctx, "Compress", "workspace", a.UserConn)
	return err
}

func (a *ToolkitAdmin) CreateVersion(ctx context.Context, v Version) error {
	_, err := a.tk.Call(ctx, "CreateVersion",
		"workspace", a.AdminConn, "parent", v.Parent, "name", v.Name, "access", v.Access)
	return err
}

func (a *ToolkitAdmin) RebuildIndexes(ctx context.Context, data []string) error {
	_, err := a.tk.Call(ctx, "RebuildIndexes",
		"workspace", a.UserConn, "system", "SYSTEM", "data", strings.Join(data, ";"), "deltaOnly", "ALL")
	return err
}

func (a *ToolkitAdmin) AnalyzeDatasets(ctx context.Context, data []string) error {
	_, err := a.tk.Call(ctx, "AnalyzeDatasets",
		"workspace", a.UserConn, "system", "SYSTEM", "data", strings.Join(data, ";"),
		"base", "ANALYZE_BASE", "delta", "ANALYZE_DELTA", "archive", "ANALYZE_ARCHIVE")
	return err
}

// ListData lists the rasters, tables and feature classes matching pattern,
// including feature classes inside feature datasets.
func (a *ToolkitAdmin) ListData(ctx context.Context, pattern string) ([]string, error) {
	return a.tk.CallLines(ctx, "ListData", "workspace", a.UserConn, "pattern", pattern)
}
