// Package jsonpages loads page-structured content from a JSON export of
// per-page block/line/span dictionaries, validated against a JSON schema.
package jsonpages

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"hybridrag/internal/domain"
)

var _ domain.PageSource = (*Source)(nil)

const schema = `{
  "type": "object",
  "required": ["pages"],
  "properties": {
    "name": {"type": "string"},
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["blocks"],
        "properties": {
          "index": {"type": "integer", "minimum": 0},
          "width": {"type": "number"},
          "height": {"type": "number"},
          "blocks": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["type", "bbox"],
              "properties": {
                "type": {"enum": [0, 1]},
                "bbox": {"$ref": "#/definitions/bbox"},
                "lines": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["spans"],
                    "properties": {
                      "spans": {
                        "type": "array",
                        "items": {
                          "type": "object",
                          "required": ["text", "size"],
                          "properties": {
                            "text": {"type": "string"},
                            "size": {"type": "number"},
                            "color": {"type": ["integer", "string"]},
                            "bbox": {"$ref": "#/definitions/bbox"}
                          }
                        }
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  },
  "definitions": {
    "bbox": {"type": "array", "items": {"type": "number"}, "minItems": 4, "maxItems": 4}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(schema)

type rawDocument struct {
	Name  string    `json:"name"`
	Pages []rawPage `json:"pages"`
}

type rawPage struct {
	Index  *int       `json:"index"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Blocks []rawBlock `json:"blocks"`
}

type rawBlock struct {
	Type  int        `json:"type"`
	BBox  [4]float64 `json:"bbox"`
	Lines []struct {
		Spans []rawSpan `json:"spans"`
	} `json:"lines"`
}

type rawSpan struct {
	Text  string          `json:"text"`
	Size  float64         `json:"size"`
	Color json.RawMessage `json:"color"`
	BBox  [4]float64      `json:"bbox"`
}

// Source reads JSON page dumps.
type Source struct{}

func New() *Source { return &Source{} }

func (s *Source) Load(_ context.Context, path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Parse validates data against the page schema and converts it. Any
// structural problem is reported as domain.ErrParse.
func Parse(data []byte) (domain.Document, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %w", domain.ErrParse, err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrParse, strings.Join(details, "; "))
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Document{}, fmt.Errorf("%w: %w", domain.ErrParse, err)
	}

	doc := domain.Document{Name: raw.Name, Pages: make([]domain.Page, 0, len(raw.Pages))}
	for i, rp := range raw.Pages {
		page := domain.Page{Index: i, Width: rp.Width, Height: rp.Height}
		if rp.Index != nil {
			page.Index = *rp.Index
		}
		for _, rb := range rp.Blocks {
			block := domain.Block{Kind: domain.BlockText, X: rb.BBox[0], Y: rb.BBox[1]}
			if rb.Type == 1 {
				block.Kind = domain.BlockImage
			}
			for _, line := range rb.Lines {
				for _, rs := range line.Spans {
					color, err := parseColor(rs.Color)
					if err != nil {
						return domain.Document{}, fmt.Errorf("%w: page %d: %w", domain.ErrParse, page.Index, err)
					}
					block.Spans = append(block.Spans, domain.Span{Text: rs.Text, BBox: rs.BBox, Size: rs.Size, Color: color})
				}
			}
			page.Blocks = append(page.Blocks, block)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

// parseColor accepts an sRGB integer or a string; integers render as #rrggbb.
func parseColor(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 || n > 0xffffff {
			return "", fmt.Errorf("color %d out of sRGB range", n)
		}
		return fmt.Sprintf("#%06x", n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("invalid color %s", raw)
	}
	return s, nil
}
