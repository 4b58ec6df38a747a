package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/embedding"
	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/extract"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/scan"
)

// prepared is a file ready to be written.
type prepared struct {
	record    graph.FileRecord
	method    string
	skipped   int
	degraded  int
	embedErrs []error
}

// fileWork is one planned file after preparation. Exactly one of prep and
// remove is set when there is something to write; neither is set when the
// file already failed or was skipped.
type fileWork struct {
	file    scan.PlannedFile
	prep    *prepared
	remove  bool
	skipped bool
}

// prepareFile reads, extracts and embeds a file. Read and extraction
// failures are recorded on res and never abort the operation.
func (ix *Indexer) prepareFile(ctx context.Context, projectID string, file scan.PlannedFile, res *IndexResult, logger *slog.Logger) fileWork {
	work := fileWork{file: file}
	if ctx.Err() != nil {
		work.skipped = true
		return work
	}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		if os.IsNotExist(err) {
			work.remove = true
			return work
		}
		ix.fileFailed(res, file.Path, coreerrors.WithPath(coreerrors.KindFileRead, "read", file.Path, err), logger)
		return work
	}

	p, err := ix.prepare(ctx, projectID, file, content)
	if err != nil {
		if ctx.Err() != nil {
			work.skipped = true
			return work
		}
		ix.fileFailed(res, file.Path, err, logger)
		return work
	}
	work.prep = p
	return work
}

// writeFile applies the per-file replace protocol for prepared work.
func (ix *Indexer) writeFile(ctx context.Context, projectID string, work fileWork, res *IndexResult, logger *slog.Logger) {
	if work.remove {
		ix.removeFile(ctx, projectID, work.file.Path, res, logger)
		return
	}
	p, path := work.prep, work.file.Path
	if p == nil {
		return
	}

	for _, e := range p.embedErrs {
		res.record(path, e)
	}
	if p.degraded > 0 {
		res.recordN(path, coreerrors.WithPath(coreerrors.KindEmbeddingDegraded, "embed", path,
			fmt.Errorf("%d zero vectors stored", p.degraded)), p.degraded)
	}

	ix.writeMu.Lock()
	replaced, err := ix.store.ReplaceFile(ctx, p.record)
	ix.writeMu.Unlock()
	if err != nil {
		ix.fileFailed(res, path, coreerrors.WithPath(coreerrors.KindSymbolPersist, "replace file", path, err), logger)
		return
	}

	for _, e := range replaced.SymbolErrors {
		res.record(path, e)
	}
	for _, e := range replaced.EmbeddingErrors {
		res.record(path, e)
	}
	if replaced.ResolutionMisses > 0 {
		res.recordN(path, coreerrors.WithPath(coreerrors.KindResolutionMiss, "resolve relationships", path,
			fmt.Errorf("%d relationship targets not found", replaced.ResolutionMisses)), replaced.ResolutionMisses)
	}

	res.mu.Lock()
	res.FilesProcessed++
	res.SymbolsIndexed += replaced.Symbols
	res.SymbolsSkipped += p.skipped + len(replaced.SymbolErrors)
	res.RelationshipsIndexed += replaced.Relationships
	res.EmbeddingsStored += replaced.Embeddings
	res.mu.Unlock()

	logger.Debug("file indexed",
		slog.String("path", path),
		slog.String("method", p.method),
		slog.Int("symbols", replaced.Symbols),
		slog.Int("relationships", replaced.Relationships),
		slog.Int("misses", replaced.ResolutionMisses))
}

func (ix *Indexer) fileFailed(res *IndexResult, path string, err error, logger *slog.Logger) {
	res.record(path, err)
	res.mu.Lock()
	res.FilesFailed++
	res.mu.Unlock()
	logger.Warn("file failed", slog.String("path", path), slog.String("kind", coreerrors.KindOf(err).String()), slog.Any("error", err))
}

// prepare extracts and embeds a file outside any transaction.
func (ix *Indexer) prepare(ctx context.Context, projectID string, file scan.PlannedFile, content []byte) (p *prepared, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = coreerrors.WithPath(coreerrors.KindExtraction, "extract", file.Path, fmt.Errorf("panic: %v", r))
		}
	}()

	result := ix.extractor.Extract(ctx, file.Path, content, file.Language)
	p = &prepared{
		method: result.Method,
		record: graph.FileRecord{
			ProjectID: projectID,
			FilePath:  file.Path,
			Language:  file.Language.String(),
			Hash:      scan.HashContent(content),
		},
	}

	vectors, keep, err := ix.embedSymbols(ctx, file.Path, result.Symbols, p)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]bool, len(result.Symbols))
	for i, sym := range result.Symbols {
		if !keep[i] {
			continue
		}
		kept[sym.Name] = true
		p.record.Symbols = append(p.record.Symbols, graph.SymbolInput{
			Name:      sym.Name,
			Type:      sym.Type,
			LineStart: sym.LineStart,
			LineEnd:   sym.LineEnd,
			Snippet:   sym.Snippet,
			Vector:    vectors[i],
		})
	}
	p.record.Relationships = relationshipInputs(result, kept)
	return p, nil
}

// relationshipInputs flattens inferred edges in symbol extraction order so
// relationship rows are written deterministically.
func relationshipInputs(result extract.Result, kept map[string]bool) []graph.RelationshipInput {
	if len(result.Relationships) == 0 {
		return nil
	}

	var sources []string
	seen := make(map[string]bool)
	for _, sym := range result.Symbols {
		if !seen[sym.Name] {
			seen[sym.Name] = true
			sources = append(sources, sym.Name)
		}
	}
	var extra []string
	for name := range result.Relationships {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	sources = append(sources, extra...)

	var inputs []graph.RelationshipInput
	for _, source := range sources {
		if !kept[source] {
			continue
		}
		for _, rel := range result.Relationships[source] {
			inputs = append(inputs, graph.RelationshipInput{
				SourceName: source,
				Type:       rel.Type,
				TargetName: rel.Target,
				TargetType: rel.TargetType,
				Line:       rel.Line,
			})
		}
	}
	return inputs
}

// embedSymbols returns one vector per symbol and which symbols to keep.
// Chunks go to the generator whole; a failed chunk is retried symbol by
// symbol and a symbol that still fails is skipped. Only cancellation is
// returned as an error.
func (ix *Indexer) embedSymbols(ctx context.Context, path string, symbols []extract.RawSymbol, p *prepared) ([][]float32, []bool, error) {
	vectors := make([][]float32, len(symbols))
	keep := make([]bool, len(symbols))
	for i := range keep {
		keep[i] = true
	}
	if ix.embedder == nil || len(symbols) == 0 {
		return vectors, keep, nil
	}

	texts := make([]string, len(symbols))
	for i, sym := range symbols {
		texts[i] = embedding.SymbolText(sym.Type, sym.Name, sym.Snippet)
	}

	size := ix.chunkSize(len(symbols))
	for start := 0; start < len(symbols); start += size {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := min(start+size, len(symbols))

		vecs, err := ix.embedder.EmbedBatch(ctx, texts[start:end])
		if err == nil && len(vecs) != end-start {
			err = embedding.ErrEmptyResponse
		}
		if err == nil {
			copy(vectors[start:end], vecs)
			continue
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		ix.logger.Debug("embedding chunk failed, retrying per symbol",
			slog.String("path", path), slog.Int("symbols", end-start), slog.Any("error", err))
		for i := start; i < end; i++ {
			vec, err := ix.embedder.Embed(ctx, texts[i])
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				keep[i] = false
				p.skipped++
				p.embedErrs = append(p.embedErrs, coreerrors.WithPath(coreerrors.KindEmbeddingDegraded,
					"embed symbol "+symbols[i].Name, path, err))
				continue
			}
			vectors[i] = vec
		}
	}

	for i, vec := range vectors {
		if keep[i] && vec != nil && embedding.IsZero(vec) {
			p.degraded++
		}
	}
	return vectors, keep, nil
}
