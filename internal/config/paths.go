package config

import "strings"

// Locators are Windows paths into geodatabases, shares and connection
// files. They are handed to the geoprocessor as-is, so they are built with
// backslashes regardless of the host OS.

const sep = `\`

// JoinLocator joins locator parts with backslashes, trimming duplicate
// separators at the joins.
func JoinLocator(base string, parts ...string) string {
	out := base
	for _, p := range parts {
		p = strings.Trim(p, `\/`)
		if p == "" {
			continue
		}
		if out == "" {
			out = p
			continue
		}
		out = strings.TrimRight(out, `\/`) + sep + p
	}
	return out
}

// SplitLocator splits a locator into its parent and leaf name.
func SplitLocator(loc string) (parent, leaf string) {
	i := strings.LastIndexAny(loc, `\/`)
	if i < 0 {
		return "", loc
	}
	return loc[:i], loc[i+1:]
}

// SdePath qualifies name as database.owner.name under base.
func SdePath(base, name, database, owner string) string {
	return JoinLocator(base, database+"."+owner+"."+name)
}

// SdeChain qualifies every segment of a dataset path such as
// "WaterUtility/Casing" under base.
func SdeChain(base, qualified, database, owner string) string {
	out := base
	for _, part := range splitQualified(qualified) {
		out = SdePath(out, part, database, owner)
	}
	return out
}

// MdbChain joins every segment of a dataset path under base.
func MdbChain(base, qualified string) string {
	return JoinLocator(base, splitQualified(qualified)...)
}

func splitQualified(q string) []string {
	return strings.FieldsFunc(q, func(r rune) bool { return r == '/' || r == '\\' })
}

// SplitExt splits a file name into base and extension, including the dot.
func SplitExt(name string) (base, ext string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}
