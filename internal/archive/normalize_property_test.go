package archive

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var (
	dirNames   = []string{"site", "dist", "assets", "docs", "a"}
	extensions = []string{".html", ".md", ".css", ".js", ".png"}
)

func memberPathGen() gopter.Gen {
	return gopter.CombineGens(
		gen.SliceOfN(3, gen.IntRange(0, len(dirNames)-1)),
		gen.IntRange(0, 3),
		gen.Identifier(),
		gen.IntRange(0, len(extensions)-1),
	).Map(func(v []interface{}) string {
		dirs, depth := v[0].([]int), v[1].(int)
		if depth > len(dirs) {
			depth = len(dirs)
		}
		var segs []string
		for _, d := range dirs[:depth] {
			segs = append(segs, dirNames[d])
		}
		segs = append(segs, v[2].(string)+extensions[v[3].(int)])
		return strings.Join(segs, "/")
	})
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0:0]
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func TestNormalizeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("normalizing twice strips nothing more", prop.ForAll(
		func(paths []string) bool {
			once := Normalize(paths)
			twice := Normalize(once.Paths)
			if twice.CommonRoot != "" {
				return false
			}
			for i := range once.Paths {
				if once.Paths[i] != twice.Paths[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(memberPathGen()),
	))

	properties.Property("distinct members stay distinct", prop.ForAll(
		func(paths []string) bool {
			paths = dedupe(paths)
			norm := Normalize(paths)
			return len(dedupe(norm.Paths)) == len(paths)
		},
		gen.SliceOf(memberPathGen()),
	))

	properties.Property("stripped paths rebuild the originals", prop.ForAll(
		func(paths []string) bool {
			norm := Normalize(paths)
			for i, p := range paths {
				if norm.CommonRoot+norm.Paths[i] != p {
					return false
				}
			}
			return true
		},
		gen.SliceOf(memberPathGen()),
	))

	properties.Property("entry point ignores member order", prop.ForAll(
		func(paths []string) bool {
			reversed := make([]string, len(paths))
			for i, p := range paths {
				reversed[len(paths)-1-i] = p
			}
			a, okA := DetectEntryPoint(paths)
			b, okB := DetectEntryPoint(reversed)
			return a == b && okA == okB
		},
		gen.SliceOf(memberPathGen()),
	))

	properties.TestingRun(t)
}
