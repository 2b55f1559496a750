// Package upload stages a product-data file and sends it to the session it
// was chosen for.
package upload

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ContentTypeCSV is the only type accepted by default.
const ContentTypeCSV = "text/csv"

var extensionTypes = map[string]string{
	".csv": ContentTypeCSV,
	".tsv": "text/tab-separated-values",
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f File) Size() int { return len(f.Data) }

// ValidationError rejects a file locally, before it is bound.
type ValidationError struct {
	Name        string
	ContentType string
	Reason      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("upload: %s (%s): %s", e.Name, e.ContentType, e.Reason)
}

// ContentTypeForName guesses a media type from the file extension.
func ContentTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// FileFromPath reads path fully and labels it by extension.
func FileFromPath(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.Wrapf(err, "upload: read %s", path)
	}
	name := filepath.Base(path)
	return File{Name: name, ContentType: ContentTypeForName(name), Data: data}, nil
}
