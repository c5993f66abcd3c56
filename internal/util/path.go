package util

import (
	"os"
	"regexp"
	"strings"
)

var winVar = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_()]*)%`)

// ExpandPath expands a leading ~ (followed by / or \) to the home
// directory and %NAME% references to environment variables, the form
// used in scheduled task definitions. Unset variables are left as written.
func ExpandPath(path string) string {
	return expandPath(path, os.Getenv, os.UserHomeDir)
}

func expandPath(path string, getenv func(string) string, home func() (string, error)) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if h, err := home(); err == nil && h != "" {
			path = h + path[1:]
		}
	}
	return winVar.ReplaceAllStringFunc(path, func(ref string) string {
		if v := getenv(ref[1 : len(ref)-1]); v != "" {
			return v
		}
		return ref
	})
}
