package domain

import "fmt"

// BlockKind distinguishes text blocks from non-text (image) blocks.
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockImage
)

// Span is a contiguous run of text sharing one font size and colour.
type Span struct {
	Text  string
	BBox  [4]float64
	Size  float64
	Color string
}

// Block groups the spans of one paragraph-like region of a page.
// X and Y are the top-left corner of its bounding box; Y grows downward.
type Block struct {
	Kind  BlockKind
	X, Y  float64
	Spans []Span
}

// Page is the structured content of a single page of a source document.
type Page struct {
	Index  int
	Width  float64
	Height float64
	Blocks []Block
}

// Document is a page-structured source document.
type Document struct {
	Name  string
	Pages []Page
}

// Chunk is the unit produced by the ingestion pipeline.
// Color and Size are voted values taken from the chunk's spans.
type Chunk struct {
	Text  string  `json:"text"`
	Page  int     `json:"page"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// Metadata returns a new record holding every chunk field except the text.
func (c Chunk) Metadata() Metadata {
	return Metadata{Page: c.Page, X: c.X, Y: c.Y, Color: c.Color, Size: c.Size}
}

// Metadata is what the store keeps next to a chunk's text.
type Metadata struct {
	Page  int     `json:"page"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// Map renders the metadata as a generic key/value record.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"page":  m.Page,
		"x":     m.X,
		"y":     m.Y,
		"color": m.Color,
		"size":  m.Size,
	}
}

// SparseVector is a term-weighted vector keyed by term index.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Len returns the number of non-zero entries.
func (v SparseVector) Len() int { return len(v.Indices) }

// Point is a single indexed record inside a collection.
type Point struct {
	ID        uint64
	Dense     []float32
	Sparse    SparseVector
	Document  string
	Metadata  Metadata
	ContentID string
}

// SearchResult is one ranked match returned by a query or lookup.
type SearchResult struct {
	ID       uint64   `json:"id"`
	Document string   `json:"document"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// Quantization configures scalar compression of the dense space.
type Quantization struct {
	Type      string  `json:"type"`
	Quantile  float64 `json:"quantile"`
	AlwaysRAM bool    `json:"always_ram"`
}

// CollectionSpec describes the vector spaces of a collection.
type CollectionSpec struct {
	DenseSize    int
	Distance     string
	Quantization *Quantization
}

// Validate checks that the collection layout can be provisioned.
func (s CollectionSpec) Validate() error {
	if s.DenseSize <= 0 {
		return fmt.Errorf("%w: dense size must be positive, got %d", ErrInvalidInput, s.DenseSize)
	}
	return nil
}

// HybridQuery carries both query embeddings plus result limits.
// Prefetch is the number of candidates drawn from each space before fusion.
type HybridQuery struct {
	Dense    []float32
	Sparse   SparseVector
	Limit    int
	Prefetch int
}

// Names of the two vector spaces every collection carries.
const (
	DenseVectorName  = "dense"
	SparseVectorName = "sparse"
)
