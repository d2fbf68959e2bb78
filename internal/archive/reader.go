package archive

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"artifact-review/internal/model/artifact"
)

const sampleSize = 10

// Member is one regular file inside the archive.
type Member struct {
	// Name is the path as stored in the archive.
	Name string
	// Path is the normalized path with the common root stripped.
	Path             string
	UncompressedSize uint64

	file *zip.File
}

// Archive is an opened, validated zip whose member paths are normalized.
type Archive struct {
	Members    []Member
	CommonRoot string
	EntryPoint string
	// EntryRule names the rule that selected EntryPoint.
	EntryRule string
}

// Open parses data as a zip, drops directories and platform junk, validates
// every member against the policy and resolves the entry point. Nothing is
// decompressed here.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, artifact.IngestionFailure(fmt.Errorf("archive is not a readable zip: %w", err))
	}

	var members []Member
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if IsJunk(f.Name) {
			continue
		}
		members = append(members, Member{Name: f.Name, UncompressedSize: f.UncompressedSize64, file: f})
	}

	if err := Validate(members); err != nil {
		return nil, err
	}

	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	norm := Normalize(names)
	seen := make(map[string]string, len(members))
	for i := range members {
		p := norm.Paths[i]
		if prev, dup := seen[p]; dup {
			return nil, artifact.Policyf("archive contains duplicate paths: %q and %q", prev, members[i].Name)
		}
		seen[p] = members[i].Name
		members[i].Path = p
	}

	entry, rule, ok := detectEntryPoint(norm.Paths)
	if !ok {
		return nil, artifact.IngestionFailure(fmt.Errorf(
			"no entry point found: archive has no HTML or Markdown file (members: %s)", sample(norm.Paths)))
	}

	return &Archive{
		Members:    members,
		CommonRoot: norm.CommonRoot,
		EntryPoint: entry,
		EntryRule:  rule,
	}, nil
}

// Validate applies the pre-extraction policy: member count, forbidden or
// unsafe paths (all offenders reported together) and declared sizes.
func Validate(members []Member) error {
	if len(members) == 0 {
		return artifact.IngestionFailure(fmt.Errorf("archive contains no files"))
	}
	if len(members) > artifact.MaxArchiveMembers {
		return artifact.Policyf("archive has too many files: maximum is %d, got %d",
			artifact.MaxArchiveMembers, len(members))
	}

	var forbidden, unsafe, oversized []string
	for _, m := range members {
		switch {
		case IsUnsafePath(m.Name):
			unsafe = append(unsafe, m.Name)
		case artifact.IsForbiddenExtension(m.Name):
			forbidden = append(forbidden, m.Name)
		}
		if int64(m.UncompressedSize) > artifact.MaxExtractedFileSize {
			oversized = append(oversized, m.Name)
		}
	}

	var problems []string
	if len(forbidden) > 0 {
		problems = append(problems, "forbidden file types: "+strings.Join(forbidden, ", "))
	}
	if len(unsafe) > 0 {
		problems = append(problems, "unsafe paths: "+strings.Join(unsafe, ", "))
	}
	if len(oversized) > 0 {
		problems = append(problems, "files larger than 5MB: "+strings.Join(oversized, ", "))
	}
	if len(problems) > 0 {
		return artifact.Policyf("archive rejected: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Extract decompresses one member. The declared size in the zip header is
// not trusted: reading stops one byte past the limit.
func (a *Archive) Extract(m Member) ([]byte, error) {
	if m.file == nil {
		return nil, fmt.Errorf("member %q does not belong to an opened archive", m.Name)
	}
	rc, err := m.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", m.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, artifact.MaxExtractedFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompress %q: %w", m.Name, err)
	}
	if err := artifact.CheckExtractedFileSize(m.Name, int64(len(data))); err != nil {
		return nil, err
	}
	return data, nil
}

func sample(paths []string) string {
	if len(paths) == 0 {
		return "none"
	}
	if len(paths) <= sampleSize {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s, ... and %d more", strings.Join(paths[:sampleSize], ", "), len(paths)-sampleSize)
}
