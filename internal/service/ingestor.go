package service

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"hybridrag/internal/chunker"
	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

// SourceFunc picks the page loader for a file.
type SourceFunc func(path string) (domain.PageSource, error)

// Job ingests one file into one collection.
type Job struct {
	Collection string
	Path       string
}

// JobResult is the outcome of one Job. Err is nil on success; an empty
// document is a success with zero chunks.
type JobResult struct {
	Job
	Chunks  int
	Created bool
	Insert  InsertResult
	Err     error
}

// IngestOptions tunes an Ingestor.
type IngestOptions struct {
	// Concurrency bounds how many collections are ingested at once.
	Concurrency int
	// Recreate empties each target collection before inserting.
	Recreate bool
}

// Ingestor runs the load -> assemble -> create -> insert pipeline.
type Ingestor struct {
	sourceFor   SourceFunc
	assembler   *chunker.Assembler
	collections *CollectionManager
	indexer     *Indexer
	opts        IngestOptions
}

func NewIngestor(sourceFor SourceFunc, assembler *chunker.Assembler, collections *CollectionManager, indexer *Indexer, opts IngestOptions) *Ingestor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Ingestor{
		sourceFor:   sourceFor,
		assembler:   assembler,
		collections: collections,
		indexer:     indexer,
		opts:        opts,
	}
}

// Run executes jobs and returns one result per job, in input order. Jobs
// naming the same collection run sequentially in input order; distinct
// collections are ingested concurrently. A failed job never cancels others.
func (in *Ingestor) Run(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))
	for i, j := range jobs {
		results[i].Job = j
	}

	var order []string
	groups := make(map[string][]int)
	for i, j := range jobs {
		if _, ok := groups[j.Collection]; !ok {
			order = append(order, j.Collection)
		}
		groups[j.Collection] = append(groups[j.Collection], i)
	}

	sem := semaphore.NewWeighted(int64(in.opts.Concurrency))
	var wg sync.WaitGroup
	for _, name := range order {
		idx := groups[name]
		if err := sem.Acquire(ctx, 1); err != nil {
			for _, i := range idx {
				results[i].Err = err
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			for _, i := range idx {
				results[i] = in.runJob(ctx, jobs[i])
			}
		}()
	}
	wg.Wait()
	return results
}

func (in *Ingestor) runJob(ctx context.Context, job Job) JobResult {
	res := JobResult{Job: job}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	logger.Section(job.Collection)

	src, err := in.sourceFor(job.Path)
	if err != nil {
		res.Err = err
		return res
	}
	doc, err := src.Load(ctx, job.Path)
	if err != nil {
		res.Err = fmt.Errorf("load %s: %w", job.Path, err)
		return res
	}
	chunks, err := in.assembler.Assemble(ctx, doc)
	if err != nil {
		res.Err = err
		return res
	}
	out := in.Store(ctx, job.Collection, chunks)
	out.Job = job
	return out
}

// Store provisions collection and inserts already assembled chunks into it.
func (in *Ingestor) Store(ctx context.Context, collection string, chunks []domain.Chunk) JobResult {
	res := JobResult{Job: Job{Collection: collection}, Chunks: len(chunks)}
	if in.opts.Recreate {
		if err := in.collections.Recreate(ctx, collection); err != nil {
			res.Err = err
			return res
		}
		res.Created = true
	} else {
		created, err := in.collections.Create(ctx, collection)
		if err != nil {
			res.Err = err
			return res
		}
		res.Created = created != NoOp
	}

	if len(chunks) == 0 {
		logger.Warn("%s: document produced no chunks", collection)
		return res
	}
	ins, err := in.indexer.Insert(ctx, collection, chunks)
	if err != nil {
		res.Err = err
		return res
	}
	res.Insert = ins
	logger.Info("%s: inserted %d chunks", collection, ins.Inserted)
	return res
}
