package archive

import (
	"path"
	"sort"
	"strings"
)

type entryRule struct {
	name   string
	choose func(sorted []string) (string, bool)
}

func exactly(want string) func([]string) (string, bool) {
	return func(sorted []string) (string, bool) {
		for _, p := range sorted {
			if p == want {
				return p, true
			}
		}
		return "", false
	}
}

func firstWhere(match func(string) bool) func([]string) (string, bool) {
	return func(sorted []string) (string, bool) {
		for _, p := range sorted {
			if match(p) {
				return p, true
			}
		}
		return "", false
	}
}

func isHTML(p string) bool {
	l := strings.ToLower(p)
	return strings.HasSuffix(l, ".html") || strings.HasSuffix(l, ".htm")
}

func isReadme(p string) bool {
	switch strings.ToLower(path.Base(p)) {
	case "readme.md", "index.md", "readme":
		return true
	}
	return false
}

func isMarkdown(p string) bool {
	l := strings.ToLower(p)
	return strings.HasSuffix(l, ".md") || strings.HasSuffix(l, ".markdown")
}

// entryRules is evaluated in order; the first rule that matches wins.
var entryRules = []entryRule{
	{"root index.html", exactly("index.html")},
	{"root index.htm", exactly("index.htm")},
	{"nested index.html", firstWhere(func(p string) bool { return strings.HasSuffix(p, "/index.html") })},
	{"first html file", firstWhere(isHTML)},
	{"readme or index markdown", firstWhere(isReadme)},
	{"first markdown file", firstWhere(isMarkdown)},
}

// DetectEntryPoint picks the file to render first from normalized paths.
func DetectEntryPoint(paths []string) (string, bool) {
	entry, _, ok := detectEntryPoint(paths)
	return entry, ok
}

func detectEntryPoint(paths []string) (entry, rule string, ok bool) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, r := range entryRules {
		if p, found := r.choose(sorted); found {
			return p, r.name, true
		}
	}
	return "", "", false
}
