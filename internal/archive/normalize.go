// Package archive turns the member list of an uploaded zip into a flat,
// root-stripped set of relative paths and picks the file to render first.
package archive

import (
	"path"
	"strings"
)

// NormalizePath strips a single leading "./" or "/".
func NormalizePath(p string) string {
	if strings.HasPrefix(p, "./") {
		return p[2:]
	}
	if strings.HasPrefix(p, "/") {
		return p[1:]
	}
	return p
}

func dirSegments(p string) []string {
	segs := strings.Split(NormalizePath(p), "/")
	return segs[:len(segs)-1]
}

// CommonRoot returns the directory prefix shared by every path, with a
// trailing slash, or "" when the paths share no directory. It stops at the
// first diverging segment or as soon as any path runs out of directories, so
// a segment that tells two files apart is never part of the root.
func CommonRoot(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	dirs := make([][]string, len(paths))
	for i, p := range paths {
		dirs[i] = dirSegments(p)
	}

	var common []string
	for idx := 0; ; idx++ {
		if idx >= len(dirs[0]) {
			break
		}
		seg := dirs[0][idx]
		same := true
		for _, d := range dirs[1:] {
			if idx >= len(d) || d[idx] != seg {
				same = false
				break
			}
		}
		if !same {
			break
		}
		common = append(common, seg)
	}
	if len(common) == 0 {
		return ""
	}
	return strings.Join(common, "/") + "/"
}

// Normalized holds the stripped root and the per-member paths, index-aligned
// with the input.
type Normalized struct {
	CommonRoot string
	Paths      []string
}

func Normalize(paths []string) Normalized {
	root := CommonRoot(paths)
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = strings.TrimPrefix(NormalizePath(p), root)
	}
	return Normalized{CommonRoot: root, Paths: out}
}

// IsJunk reports platform metadata that never belongs in an artifact.
func IsJunk(name string) bool {
	n := NormalizePath(name)
	if strings.HasPrefix(n, "__MACOSX/") || strings.Contains(n, "/__MACOSX/") {
		return true
	}
	base := path.Base(n)
	return base == ".DS_Store" || strings.HasPrefix(base, "._")
}

// IsUnsafePath reports paths that could escape the version's file set.
func IsUnsafePath(name string) bool {
	n := NormalizePath(name)
	if n == "" || strings.HasPrefix(n, "/") || strings.Contains(n, "\\") {
		return true
	}
	for _, seg := range strings.Split(n, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
