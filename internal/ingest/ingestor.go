package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"natural-alert/internal/logger"
)

// ListPDFs returns the PDF files directly under dir, sorted by name.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read assets dir %s failed: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

type Extractor func(path string) (string, error)

type Densifier interface {
	Densify(ctx context.Context, text string) (string, error)
}

type Splitter interface {
	Split(text string) []string
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Inserter interface {
	Create(ctx context.Context) error
	Insert(ctx context.Context, text string, vector []float32) (string, error)
}

// DocumentResult reports the outcome of one document. Err is set when
// the document failed; Chunks counts the records actually indexed.
type DocumentResult struct {
	Path   string
	Chunks int
	Err    error
}

// Ingestor drives the document pipeline: extract, densify, split,
// embed, insert. Documents run in parallel up to Concurrency; a failed
// document never blocks the rest of the batch.
type Ingestor struct {
	extract        Extractor
	densifier      Densifier
	splitter       Splitter
	embedder       Embedder
	index          Inserter
	concurrency    int
	embedBatchSize int
	log            *logger.Logger

	// OnDocumentDone fires after each document finishes, in any order.
	OnDocumentDone func(DocumentResult)
}

func NewIngestor(extract Extractor, densifier Densifier, splitter Splitter, embedder Embedder, index Inserter, concurrency, embedBatchSize int, log *logger.Logger) *Ingestor {
	if concurrency < 1 {
		concurrency = 1
	}
	if embedBatchSize < 1 {
		embedBatchSize = 10
	}
	return &Ingestor{
		extract:        extract,
		densifier:      densifier,
		splitter:       splitter,
		embedder:       embedder,
		index:          index,
		concurrency:    concurrency,
		embedBatchSize: embedBatchSize,
		log:            log,
	}
}

// Run ensures the index exists, then processes every path. The returned
// results are ordered like paths. Only a failed index creation aborts
// the whole batch.
func (ing *Ingestor) Run(ctx context.Context, paths []string) ([]DocumentResult, error) {
	if err := ing.index.Create(ctx); err != nil {
		return nil, err
	}

	results := make([]DocumentResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res := ing.ingestDocument(gctx, path)
			results[i] = res
			if ing.OnDocumentDone != nil {
				ing.OnDocumentDone(res)
			}
			// Per-document failures are reported in results, not
			// propagated, so sibling documents keep running.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (ing *Ingestor) ingestDocument(ctx context.Context, path string) DocumentResult {
	res := DocumentResult{Path: path}

	text, err := ing.extract(path)
	if err != nil {
		res.Err = fmt.Errorf("extract %s failed: %w", path, err)
		return res
	}
	if strings.TrimSpace(text) == "" {
		ing.log.Warnw("document has no extractable text", "path", path)
		return res
	}

	dense, err := ing.densifier.Densify(ctx, text)
	if err != nil {
		res.Err = fmt.Errorf("densify %s failed: %w", path, err)
		return res
	}

	chunks := ing.splitter.Split(dense)
	if len(chunks) == 0 {
		ing.log.Warnw("document produced no chunks", "path", path)
		return res
	}

	for start := 0; start < len(chunks); start += ing.embedBatchSize {
		end := start + ing.embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := ing.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			res.Err = fmt.Errorf("embed %s failed: %w", path, err)
			return res
		}
		if len(vectors) != len(batch) {
			res.Err = fmt.Errorf("embed %s failed: got %d vectors for %d chunks", path, len(vectors), len(batch))
			return res
		}

		for j, vector := range vectors {
			if _, err := ing.index.Insert(ctx, batch[j], vector); err != nil {
				res.Err = fmt.Errorf("insert chunk from %s failed: %w", path, err)
				return res
			}
			res.Chunks++
		}
	}

	return res
}
