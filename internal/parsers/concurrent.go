package parsers

import (
	"context"
	"path/filepath"
	"sync"

	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/pkg/errors"
)

// Source is an in-memory input file, as received from an upload
type Source struct {
	Name    string
	Content []byte
}

// ReadSource loads a file from disk as a Source named after its base name
func ReadSource(path string) (Source, error) {
	content, err := readFile(path)
	if err != nil {
		return Source{}, err
	}
	return Source{Name: filepath.Base(path), Content: content}, nil
}

// ConcurrentParser parses several charge files in parallel with bounded concurrency
type ConcurrentParser struct {
	parser    *ChargeFileParser
	semaphore chan struct{}
	onParsed  func(*ConcurrentParseResult)
}

// NewConcurrentParser creates a concurrent parser around parser
func NewConcurrentParser(parser *ChargeFileParser, maxConcurrency int) *ConcurrentParser {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	return &ConcurrentParser{
		parser:    parser,
		semaphore: make(chan struct{}, maxConcurrency),
	}
}

// OnParsed registers a callback invoked as each source finishes. It may be
// called from several goroutines at once.
func (cp *ConcurrentParser) OnParsed(callback func(*ConcurrentParseResult)) {
	cp.onParsed = callback
}

// ConcurrentParseResult holds the outcome for a single source
type ConcurrentParseResult struct {
	Name    string
	Records []*models.ChargeRecord
	Stats   *ChargeParseStats
}

// ParseSources parses every source and returns the records in source order,
// lines in file order within each source.
func (cp *ConcurrentParser) ParseSources(ctx context.Context, sources []Source) ([]*models.ChargeRecord, *ChargeParseStats, error) {
	results := make([]*ConcurrentParseResult, len(sources))

	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)

		go func(i int, source Source) {
			defer wg.Done()

			select {
			case cp.semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-cp.semaphore }()

			records, stats := cp.parser.ParseContent(source.Name, source.Content)
			results[i] = &ConcurrentParseResult{Name: source.Name, Records: records, Stats: stats}
			if cp.onParsed != nil {
				cp.onParsed(results[i])
			}
		}(i, source)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, errors.InternalError(errors.CodeCancelled, "parse charge files", err)
	}

	total := &ChargeParseStats{}
	var records []*models.ChargeRecord
	for _, result := range results {
		records = append(records, result.Records...)
		total.Merge(result.Stats)
	}
	total.RecordsParsed = len(records)

	return records, total, nil
}
