package artifact

import (
	"encoding/json"
	"fmt"
)

// FileType is the logical type of a version's content.
type FileType int

const (
	FileTypeHTML FileType = iota + 1
	FileTypeMarkdown
	FileTypeZip
)

var fileTypeNames = map[string]FileType{
	"html":     FileTypeHTML,
	"markdown": FileTypeMarkdown,
	"zip":      FileTypeZip,
}

func ParseFileType(s string) (FileType, error) {
	if ft, ok := fileTypeNames[s]; ok {
		return ft, nil
	}
	return 0, Policyf("unsupported file type: %s", s)
}

func IsValidFileType(s string) bool {
	_, ok := fileTypeNames[s]
	return ok
}

// IsSingleFileType reports whether s names a type uploaded as one file.
func IsSingleFileType(s string) bool {
	ft, err := ParseFileType(s)
	return err == nil && ft.IsSingleFile()
}

func (t FileType) String() string {
	switch t {
	case FileTypeHTML:
		return "html"
	case FileTypeMarkdown:
		return "markdown"
	case FileTypeZip:
		return "zip"
	default:
		return fmt.Sprintf("FileType(%d)", int(t))
	}
}

func (t FileType) IsSingleFile() bool {
	switch t {
	case FileTypeHTML, FileTypeMarkdown:
		return true
	case FileTypeZip:
		return false
	default:
		return false
	}
}

func (t FileType) DefaultPath() string {
	switch t {
	case FileTypeHTML:
		return "index.html"
	case FileTypeMarkdown:
		return "README.md"
	case FileTypeZip:
		return "index.html"
	default:
		return "content"
	}
}

func (t FileType) MimeType() string {
	switch t {
	case FileTypeHTML:
		return "text/html"
	case FileTypeMarkdown:
		return "text/markdown"
	case FileTypeZip:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

func (t FileType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *FileType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	ft, err := ParseFileType(s)
	if err != nil {
		return err
	}
	*t = ft
	return nil
}
