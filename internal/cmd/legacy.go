package cmd

import "strings"

// legacySwitches maps the Windows-style switches used by the existing
// scheduled tasks to flag names.
var legacySwitches = map[string]string{
	"appserver": "app-server",
	"dbserver":  "db-server",
	"versions":  "versions",
	"compress":  "compress",
	"import":    "import",
	"indexes":   "indexes",
}

// NormalizeLegacyArgs rewrites switches such as /AppServer or /versions
// into --app-server and --versions. Everything else is left alone.
func NormalizeLegacyArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a
		if len(a) < 2 || a[0] != '/' {
			continue
		}
		if name, ok := legacySwitches[strings.ToLower(a[1:])]; ok {
			out[i] = "--" + name
		}
	}
	return out
}
