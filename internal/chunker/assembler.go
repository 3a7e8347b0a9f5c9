package chunker

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

// Options tune the ingestion pipeline.
type Options struct {
	ColumnThreshold float64
	MinFontSize     float64
	ActivityMarker  string
	// Workers bounds concurrent page extraction. Zero means GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the standard two-column textbook settings.
func DefaultOptions() Options {
	return Options{
		ColumnThreshold: DefaultColumnThreshold,
		MinFontSize:     DefaultMinFontSize,
		ActivityMarker:  DefaultActivityMarker,
	}
}

// Assembler drives extraction, ordering, normalisation and merging across a
// whole document.
type Assembler struct {
	opts Options
}

// NewAssembler creates an assembler. Non-positive thresholds fall back to
// the defaults; an empty marker disables activity merging.
func NewAssembler(opts Options) *Assembler {
	if opts.ColumnThreshold <= 0 {
		opts.ColumnThreshold = DefaultColumnThreshold
	}
	if opts.MinFontSize < 0 {
		opts.MinFontSize = DefaultMinFontSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Assembler{opts: opts}
}

// Options returns the effective settings.
func (a *Assembler) Options() Options { return a.opts }

// Assemble returns the document's chunks in reading order. Pages are
// processed concurrently; merging runs once over the stitched sequence.
// A document without text yields an empty, non-nil slice.
func (a *Assembler) Assemble(ctx context.Context, doc domain.Document) ([]domain.Chunk, error) {
	perPage := make([][]domain.Chunk, len(doc.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i := range doc.Pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunks, err := a.processPage(doc.Pages[i])
			if err != nil {
				return err
			}
			perPage[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assemble %s: %w", doc.Name, err)
	}

	order := make([]int, len(doc.Pages))
	total := 0
	for i := range order {
		order[i] = i
		total += len(perPage[i])
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(doc.Pages[a].Index, doc.Pages[b].Index)
	})
	all := make([]domain.Chunk, 0, total)
	for _, i := range order {
		all = append(all, perPage[i]...)
	}
	merged := MergeActivities(all, a.opts.ActivityMarker)
	logger.Debug("Assembled %s: %d pages, %d chunks (%d before activity merge)",
		doc.Name, len(doc.Pages), len(merged), len(all))
	return merged, nil
}

func (a *Assembler) processPage(page domain.Page) ([]domain.Chunk, error) {
	chunks, err := Extract(page, a.opts.MinFontSize)
	if err != nil {
		return nil, err
	}
	chunks = SortReadingOrder(chunks, a.opts.ColumnThreshold)
	for i := range chunks {
		chunks[i].Text = Normalize(chunks[i].Text)
	}
	return chunks, nil
}
