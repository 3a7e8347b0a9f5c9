// Package pdf loads page-structured content from PDF text layers.
package pdf

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tsawler/tabula/layout"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/text"
	"golang.org/x/text/unicode/norm"

	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

var _ domain.PageSource = (*Source)(nil)

// DefaultColor is reported for every span: PDF text fragments carry no fill
// colour, so all text votes the same way.
const DefaultColor = "#000000"

// Source reads PDFs with tabula and groups fragments into blocks with its
// layout detector.
type Source struct {
	detector *layout.BlockDetector
}

func New() *Source {
	return &Source{detector: layout.NewBlockDetector()}
}

// Load returns one Page per PDF page. Coordinates are flipped so that the
// origin is the top-left corner and y grows downward.
func (s *Source) Load(ctx context.Context, path string) (domain.Document, error) {
	r, err := reader.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: open %s: %w", domain.ErrParse, path, err)
	}
	defer r.Close()

	count, err := r.PageCount()
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s: page count: %w", domain.ErrParse, path, err)
	}

	doc := domain.Document{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return domain.Document{}, err
		}
		page, err := s.loadPage(r, i)
		if err != nil {
			return domain.Document{}, fmt.Errorf("%w: %s page %d: %w", domain.ErrParse, path, i, err)
		}
		doc.Pages = append(doc.Pages, page)
	}
	logger.Debug("Loaded %d pages from %s", len(doc.Pages), path)
	return doc, nil
}

func (s *Source) loadPage(r *reader.Reader, index int) (domain.Page, error) {
	p, err := r.GetPage(index)
	if err != nil {
		return domain.Page{}, err
	}
	width, err := p.Width()
	if err != nil {
		return domain.Page{}, err
	}
	height, err := p.Height()
	if err != nil {
		return domain.Page{}, err
	}
	frags, err := r.ExtractTextFragments(p)
	if err != nil {
		return domain.Page{}, err
	}

	page := domain.Page{Index: index, Width: width, Height: height}
	for _, b := range s.detector.Detect(frags, width, height).Blocks {
		block := domain.Block{
			Kind: domain.BlockText,
			X:    b.BBox.X,
			Y:    height - (b.BBox.Y + b.BBox.Height),
		}
		for _, line := range b.Lines {
			for _, f := range line {
				block.Spans = append(block.Spans, span(f, height))
			}
		}
		page.Blocks = append(page.Blocks, block)
	}
	return page, nil
}

func span(f text.TextFragment, pageHeight float64) domain.Span {
	return domain.Span{
		Text:  norm.NFKC.String(f.Text),
		BBox:  [4]float64{f.X, pageHeight - (f.Y + f.Height), f.X + f.Width, pageHeight - f.Y},
		Size:  f.FontSize,
		Color: DefaultColor,
	}
}
