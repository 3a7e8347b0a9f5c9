// Package source picks a page loader for an input file.
package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"hybridrag/internal/domain"
	"hybridrag/internal/source/jsonpages"
	"hybridrag/internal/source/pdf"
)

// ForPath returns the loader matching the file extension.
func ForPath(path string) (domain.PageSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdf.New(), nil
	case ".json":
		return jsonpages.New(), nil
	default:
		return nil, fmt.Errorf("%w: no page loader for %q", domain.ErrUnsupportedType, path)
	}
}
