// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/sassoftware/pdf-xtract/cache"
	"github.com/sassoftware/pdf-xtract/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Processor defines the contract for extracting text from a PDF file.
type Processor interface {
	Extract(ctx context.Context, path string) (string, bool, error)
	ExtractBytes(ctx context.Context, data []byte) (string, bool, error)
}

// ExtractorStrategy defines how to extract text from a single page.
// Different strategies handle errors differently (strict vs. best-effort).
type ExtractorStrategy interface {
	ExtractPage(ctx context.Context, page *Page) (string, error)
}

// StrictExtractor enforces strict parsing.
// If any page fails, the entire extraction fails.
type StrictExtractor struct {
	Options TextOptions
}

func (s *StrictExtractor) ExtractPage(ctx context.Context, page *Page) (string, error) {
	return page.ExtractText(ctx, orDefault(s.Options), true)
}

// BestEffortExtractor tolerates errors.
// If a page fails, it simply skips that page.
type BestEffortExtractor struct {
	Options TextOptions
}

func (b *BestEffortExtractor) ExtractPage(ctx context.Context, page *Page) (string, error) {
	text, err := page.ExtractText(ctx, orDefault(b.Options), false)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		logger.Debug(fmt.Sprintf("BestEffortExtractor: ignoring page error: page=%d %d R err=%v",
			page.V.ptr.id, page.V.ptr.gen, err), true)
		return "", nil
	}
	return text, nil
}

func orDefault(opt TextOptions) TextOptions {
	if opt == (TextOptions{}) {
		return DefaultTextOptions()
	}
	return opt
}

// PageText is one page of a streamed extraction. Truncated is set on the
// page where MaxTotalChars cut the text; no pages follow it. Err is set
// when strict mode stops on a failing page.
type PageText struct {
	Page      int
	Text      string
	Truncated bool
	Err       error
}

// processor manages PDF extraction with concurrency control
// and delegates page-level work to the chosen ExtractorStrategy.
type processor struct {
	cfg       *Config
	opt       TextOptions
	sem       *semaphore.Weighted
	extractor ExtractorStrategy
}

// NewProcessor validates the config and creates a new processor.
// Selects the correct ExtractorStrategy (Strict or BestEffort).
func NewProcessor(cfg *Config) *processor {
	//Validate the config object
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	opt := cfg.textOptions()

	//Select ExtractorStrategy
	var extractor ExtractorStrategy
	switch cfg.ParsingMode {
	case Strict:
		extractor = &StrictExtractor{Options: opt}
	case BestEffort:
		extractor = &BestEffortExtractor{Options: opt}
	}

	//Set the logger function
	if cfg.Logger != nil {
		logger.SetLogger(cfg.Logger)
	}
	DebugOn = cfg.DebugOn

	logger.Debug(fmt.Sprintf("Processor initialized: parsing_mode=%v, max_concurrent_pdfs=%d, max_workers_per_pdf=%d",
		cfg.ParsingMode, cfg.MaxConcurrentPDFs, cfg.MaxWorkersPerPDF), true)

	return &processor{
		cfg:       cfg,
		opt:       opt,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentPDFs)),
		extractor: extractor,
	}
}

// Extract extracts PDF text in order, respecting Config.MaxTotalChars as a limit.
// Returns the full text (or up to the limit) and a truncated flag if the output hits the character limit.
func (p *processor) Extract(ctx context.Context, path string) (string, bool, error) {
	logger.Debug(fmt.Sprintf("Starting extraction: path=%s", path), true)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug(fmt.Sprintf("Failed to read PDF: path=%s err=%v", path, err), true)
		return "", false, err
	}
	return p.extract(ctx, data, path)
}

// ExtractBytes is Extract for a document held in memory.
func (p *processor) ExtractBytes(ctx context.Context, data []byte) (string, bool, error) {
	return p.extract(ctx, data, fmt.Sprintf("<%d bytes>", len(data)))
}

func (p *processor) extract(ctx context.Context, data []byte, name string) (string, bool, error) {
	if err := p.acquireSlot(ctx); err != nil {
		logger.Debug(fmt.Sprintf("Failed to acquire slot: err=%v", err), true)
		return "", false, err
	}
	defer p.sem.Release(1)
	logger.Debug(fmt.Sprintf("Slot acquired for extraction: path=%s", name), true)

	key := p.cacheKey(data)
	if text, truncated, ok := p.cached(ctx, key); ok {
		logger.Debug(fmt.Sprintf("Cache hit: path=%s key=%s", name, key), true)
		return text, truncated, nil
	}

	r, err := Parse(data)
	if err != nil {
		logger.Debug(fmt.Sprintf("Failed to open PDF: path=%s err=%v", name, err), true)
		return "", false, err
	}

	total := r.NumPage()
	logger.Debug(fmt.Sprintf("Total pages detected: path=%s pages=%d", name, total), true)
	if total == 0 {
		logger.Debug(fmt.Sprintf("No pages found in PDF: path=%s", name), true)
		return "", false, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	results, wait := p.run(runCtx, r, total)

	out, truncated, err := p.emitInOrder(results, total)
	cancel()
	if werr := wait(); err == nil && werr != nil && !errors.Is(werr, context.Canceled) {
		err = werr
	}
	if err != nil {
		return "", false, err
	}

	p.store(ctx, key, out, truncated)
	logger.Debug(fmt.Sprintf("Extraction completed: path=%s truncated=%v total_chars=%d", name, truncated, len(out)), true)
	return out, truncated, nil
}

// ExtractAsStream streams page texts in page order. The channel is closed
// after the last page, after the page that reached MaxTotalChars or after
// a strict-mode failure. Callers must drain the channel or cancel ctx.
func (p *processor) ExtractAsStream(ctx context.Context, path string) (<-chan PageText, error) {
	logger.Debug(fmt.Sprintf("Starting streaming extraction: path=%s", path), true)

	if err := p.acquireSlot(ctx); err != nil {
		logger.Debug(fmt.Sprintf("Failed to acquire slot for stream: err=%v", err), true)
		return nil, err
	}

	f, r, err := Open(path)
	if err != nil {
		p.sem.Release(1)
		logger.Debug(fmt.Sprintf("Failed to open PDF for streaming: err=%v", err), true)
		return nil, err
	}

	total := r.NumPage()
	logger.Debug(fmt.Sprintf("Streaming: total pages=%d", total), true)

	outCh := make(chan PageText)
	ctx, cancel := context.WithCancel(ctx)
	results, wait := p.run(ctx, r, total)

	go func() {
		defer p.sem.Release(1)
		defer f.Close()
		defer close(outCh)
		defer cancel()
		truncated := p.streamInOrder(ctx, results, total, outCh)
		cancel()
		_ = wait()
		logger.Debug(fmt.Sprintf("Streaming extraction completed: path=%s truncated=%v", path, truncated), true)
	}()

	return outCh, nil
}

type pageResult struct {
	index int
	text  string
	err   error
}

// run warms the font cache and starts the page workers. wait blocks until
// every worker has returned.
func (p *processor) run(ctx context.Context, r *Reader, total int) (<-chan pageResult, func() error) {
	results := make(chan pageResult, total)
	if total == 0 {
		close(results)
		return results, func() error { return nil }
	}
	warmFonts(r, total)

	numWorkers := p.adjustWorkerCount(p.cfg.MaxWorkersPerPDF)
	jobs := make(chan int, total)

	g, gctx := errgroup.WithContext(ctx)
	p.startWorkers(gctx, g, r, jobs, results, numWorkers)
	g.Go(func() error {
		defer close(jobs)
		return p.feedJobs(gctx, total, jobs)
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()
	var err error
	waited := false
	return results, func() error {
		if !waited {
			err, waited = <-done, true
		}
		return err
	}
}

// warmFonts resolves every font of every page before the workers start,
// so workers read a populated cache.
func warmFonts(r *Reader, total int) {
	n := 0
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		for _, name := range page.Fonts() {
			if page.Font(name) != nil {
				n++
			}
		}
	}
	logger.Debug(fmt.Sprintf("Fonts warmed: pages=%d font_refs=%d", total, n), true)
}

// limiter applies MaxTotalChars to a sequence of page texts.
type limiter struct {
	max       int
	sep       string
	written   int
	truncated bool
}

// next returns the portion of the page text to emit, including the page
// separator before every page but the first.
func (l *limiter) next(page int, text string) string {
	if page > 1 {
		text = l.sep + text
	}
	if text == "" {
		return ""
	}
	if l.max > 0 {
		remaining := l.max - l.written
		if remaining <= 0 {
			l.truncated = true
			logger.Debug(fmt.Sprintf("Truncation reached: limit=%d", l.max), true)
			return ""
		}
		if len(text) > remaining {
			text = cutUTF8(text, remaining)
			l.truncated = true
			logger.Debug(fmt.Sprintf("Partial truncation applied: remaining=%d page=%d", remaining, page), true)
		}
	}
	l.written += len(text)
	return text
}

// cutUTF8 shortens s to at most n bytes without splitting a character.
func cutUTF8(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (p *processor) emitInOrder(results <-chan pageResult, total int) (string, bool, error) {
	pageBuffer := make(map[int]string)
	nextPage := 1
	var out strings.Builder
	lim := limiter{max: p.cfg.MaxTotalChars, sep: p.opt.PageSeparator}
	for res := range results {
		if res.err != nil && p.cfg.ParsingMode == Strict {
			logger.Debug(fmt.Sprintf("Strict mode error, stopping extraction: page=%d err=%v", res.index, res.err), true)
			return "", false, fmt.Errorf("strict mode failed on page %d: %w", res.index, res.err)
		}
		pageBuffer[res.index] = res.text

		// Emit in-order pages immediately
		for !lim.truncated {
			text, ok := pageBuffer[nextPage]
			if !ok {
				break
			}
			out.WriteString(lim.next(nextPage, text))
			delete(pageBuffer, nextPage)
			nextPage++
		}
		if lim.truncated || nextPage > total {
			break
		}
	}
	return out.String(), lim.truncated, nil
}

func (p *processor) streamInOrder(ctx context.Context, results <-chan pageResult, total int, outCh chan<- PageText) (truncated bool) {
	pageBuffer := make(map[int]string)
	nextPage := 1
	lim := limiter{max: p.cfg.MaxTotalChars}

	send := func(pt PageText) bool {
		select {
		case outCh <- pt:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for res := range results {
		if res.err != nil && p.cfg.ParsingMode == Strict {
			logger.Debug(fmt.Sprintf("Strict mode error, stopping streaming: page=%d err=%v", res.index, res.err), true)
			send(PageText{Page: res.index, Err: fmt.Errorf("strict mode failed on page %d: %w", res.index, res.err)})
			return false
		}
		pageBuffer[res.index] = res.text

		// Emit pages in-order
		for {
			text, ok := pageBuffer[nextPage]
			if !ok {
				break
			}
			text = lim.next(nextPage, text)
			if !send(PageText{Page: nextPage, Text: text, Truncated: lim.truncated}) || lim.truncated {
				return lim.truncated
			}
			delete(pageBuffer, nextPage)
			nextPage++
		}
		if nextPage > total {
			break
		}
	}
	return lim.truncated
}

func (p *processor) acquireSlot(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	logger.Debug("Slot acquired successfully", true)
	return nil
}

func (p *processor) adjustWorkerCount(maxWorkers int) int {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if n := runtime.NumCPU(); maxWorkers > n {
		maxWorkers = n
	}
	logger.Debug(fmt.Sprintf("Adjusted worker count: workers=%d", maxWorkers), true)
	return maxWorkers
}

func (p *processor) startWorkers(ctx context.Context, g *errgroup.Group, r *Reader, jobs <-chan int, results chan<- pageResult, numWorkers int) {
	logger.Debug(fmt.Sprintf("Spawning workers: num_workers=%d", numWorkers), true)
	for w := 1; w <= numWorkers; w++ {
		id := w
		g.Go(func() error {
			logger.Debug(fmt.Sprintf("Worker started: id=%d", id), true)
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				page := r.Page(i)
				if page.V.IsNull() {
					logger.Debug(fmt.Sprintf("Null page encountered: index=%d", i), true)
					results <- pageResult{i, "", &MalformedObject{Msg: fmt.Sprintf("page %d is not a dictionary", i)}}
					continue
				}

				text, err := p.extractPageWithRetries(ctx, &page)
				results <- pageResult{i, text, err}
				if err != nil {
					logger.Debug(fmt.Sprintf("Worker: page extraction error: worker_id=%d page=%d err=%v", id, i, err), true)
				} else {
					logger.Debug(fmt.Sprintf("Worker: page extracted successfully: worker_id=%d page=%d", id, i), true)
				}
			}
			logger.Debug(fmt.Sprintf("Worker finished: id=%d", id), true)
			return nil
		})
	}
}

func (p *processor) extractPageWithRetries(ctx context.Context, page *Page) (string, error) {
	var text string
	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		ctxPage, cancel := context.WithTimeout(ctx, p.cfg.WorkerTimeout)
		text, err = p.extractor.ExtractPage(ctxPage, page)
		cancel()
		if err == nil || ctx.Err() != nil {
			break
		}
		logger.Debug(fmt.Sprintf("Retrying page extraction: attempt=%d err=%v", attempt, err), true)
	}
	return text, err
}

func (p *processor) feedJobs(ctx context.Context, total int, jobs chan<- int) error {
	for i := 1; i <= total; i++ {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled while feeding jobs", true)
			return ctx.Err()
		case jobs <- i:
			logger.Debug(fmt.Sprintf("Job queued: page=%d", i), true)
		}
	}
	logger.Debug(fmt.Sprintf("All jobs queued: total_pages=%d", total), true)
	return nil
}

// cacheKey names the result of extracting data with the current options.
// It is empty when no cache is configured.
func (p *processor) cacheKey(data []byte) string {
	if p.cfg.Cache == nil {
		return ""
	}
	salt := fmt.Sprintf("%s|%d|%g|%g|%g|%q", p.cfg.ParsingMode, p.cfg.MaxTotalChars,
		p.opt.SpaceThreshold, p.opt.TabThreshold, p.opt.LineThreshold, p.opt.PageSeparator)
	return cache.Key(data, salt)
}

// Cached values carry the truncated flag in their first byte.
func (p *processor) cached(ctx context.Context, key string) (string, bool, bool) {
	if key == "" {
		return "", false, false
	}
	v, ok, err := p.cfg.Cache.Get(ctx, key)
	if err != nil {
		logger.Debug(fmt.Sprintf("Cache lookup failed: key=%s err=%v", key, err), true)
		return "", false, false
	}
	if !ok || len(v) == 0 {
		return "", false, false
	}
	return string(v[1:]), v[0] == 1, true
}

func (p *processor) store(ctx context.Context, key, text string, truncated bool) {
	if key == "" {
		return
	}
	v := make([]byte, 1, len(text)+1)
	if truncated {
		v[0] = 1
	}
	v = append(v, text...)
	if err := p.cfg.Cache.Set(ctx, key, v, p.cfg.CacheTTL); err != nil {
		logger.Debug(fmt.Sprintf("Cache store failed: key=%s err=%v", key, err), true)
	}
}

// Metadata prints PDF metadata as JSON to the provided writer
func (p *processor) Metadata(ctx context.Context, path string, w io.Writer) error {
	logger.Debug(fmt.Sprintf("Reading metadata: path=%s", path), true)

	if err := p.acquireSlot(ctx); err != nil {
		return err
	}
	defer p.sem.Release(1)

	f, r, err := Open(path)
	if err != nil {
		logger.Error("failed to open PDF for metadata:")
		return err
	}
	defer f.Close()
	if err := r.MetadataJSON(w); err != nil {
		logger.Error("failed to read metadata")
		return err
	}

	logger.Debug(fmt.Sprintf("Metadata extraction completed: path=%s", path), true)
	return nil
}
