package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/nnww-gis/gisops/internal/gdbadmin"
)

func TestUsersTable(t *testing.T) {
	users := []gdbadmin.User{
		{Name: "GIS.JSMITH", Client: "PC-114", ID: 42, ConnectedAt: time.Date(2026, 3, 7, 21, 4, 5, 0, time.UTC), Direct: true},
		{Name: "SDE", Client: "ARCTIC", ID: 7},
	}
	out := usersTable(users).Render()
	for _, want := range []string{"CONNECTED", "TYPE", "2026-03-07  21:04:05", "GIS.JSMITH", "PC-114", "42", "Direct", "Application Server"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "\n"); got != 4 {
		t.Errorf("table has %d lines, want 4:\n%s", got, out)
	}
}
