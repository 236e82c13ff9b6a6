package extract

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/tabext/tabext/internal/chunk"
	"github.com/tabext/tabext/internal/clean"
	"github.com/tabext/tabext/internal/llm"
	"github.com/tabext/tabext/internal/rows"
	"github.com/tabext/tabext/internal/tablescan"
)

// Fetcher retrieves the raw HTML of one page. A single attempt per URL; the
// extractor turns any error into an empty-row page result.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

const (
	// defaultCharsPerToken scales the token-oriented window size from the
	// request into a character window. The ratio is a deliberate
	// approximation; tune it rather than trust it.
	defaultCharsPerToken = 10
	// defaultMaxChunkChars bounds the chunk text placed into a prompt.
	defaultMaxChunkChars = 8000
	// defaultMaxParallelURLs bounds concurrent page pipelines, out of
	// politeness to both the target sites and the model provider.
	defaultMaxParallelURLs = 4
)

const systemPrompt = "You are a precise data extractor. Return ONLY JSON. " +
	"Given a chunk of webpage text and a user query, extract structured rows relevant to the query. " +
	"If nothing relevant exists, return an empty array []."

// Extractor runs extraction requests end to end: fetch, clean, chunk, call
// the model per chunk, parse, dedupe, and stop early once a page has met its
// share of the requested rows. Page pipelines are independent; one page
// failing never aborts the others.
type Extractor struct {
	Fetcher Fetcher
	Client  llm.Client
	// HasCredential reports whether a provider API key is configured.
	// Without one, LLM-strategy requests fail up front instead of
	// returning silently empty pages.
	HasCredential bool
	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	CharsPerToken   int
	MaxChunkChars   int
	MaxParallelURLs int
}

// Run processes req and always returns a well-formed Response. Request-level
// configuration problems produce Success=false with an explanation; per-URL
// failures only empty that URL's rows.
func (e *Extractor) Run(ctx context.Context, req Request) Response {
	req.Normalize()

	if req.Strategy == StrategyLLM {
		if req.LLM.Provider != "openai" {
			return Response{Results: []PageResult{}, Error: fmt.Sprintf("unsupported provider: %q", req.LLM.Provider)}
		}
		if !e.HasCredential || e.Client == nil {
			return Response{Results: []PageResult{}, Error: "OPENAI_API_KEY is not set on the server"}
		}
		if req.LLM.Model == "" {
			req.LLM.Model = e.DefaultModel
		}
	}

	perTarget := perURLTarget(req.TargetRows, len(req.URLs))
	log.Debug().Int("urls", len(req.URLs)).Int("perURLTarget", perTarget).
		Str("strategy", req.Strategy).Msg("starting extraction")

	results := make([]PageResult, len(req.URLs))
	sem := make(chan struct{}, e.maxParallelURLs())
	var wg sync.WaitGroup
	for i, pageURL := range req.URLs {
		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.processURL(ctx, pageURL, &req, perTarget)
		}(i, pageURL)
	}
	wg.Wait()

	var all []rows.Row
	for _, r := range results {
		all = append(all, r.Rows...)
	}
	return Response{Success: true, Results: results, CSV: rows.CSV(all)}
}

// processURL is the per-page pipeline. It owns its accumulator exclusively,
// so pages can run in parallel without shared state.
func (e *Extractor) processURL(ctx context.Context, pageURL string, req *Request, target int) PageResult {
	res := PageResult{URL: pageURL, Rows: []rows.Row{}}

	body, err := e.Fetcher.Get(ctx, pageURL)
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("fetch failed; page yields no rows")
		return res
	}

	doc := clean.FromHTML(body)
	res.Title = doc.Title

	if req.Strategy == StrategyTable {
		scanned, tables := tablescan.Scan(body)
		res.Rows = rows.Dedupe(scanned)
		log.Debug().Str("url", pageURL).Int("tables", tables).Int("rows", len(res.Rows)).
			Msg("table scan complete")
		return res
	}

	window := *req.Chunking.WindowSize * e.charsPerToken()
	overlap := *req.Chunking.Overlap * e.charsPerToken()

	accumulated := res.Rows
	chunksSent := 0
	for c := range chunk.Split(doc.Text, window, overlap) {
		if ctx.Err() != nil {
			break
		}
		chunksSent++
		if parsed := e.extractChunk(ctx, c, req); len(parsed) > 0 {
			accumulated = rows.Dedupe(append(accumulated, parsed...))
		}
		// Early stop: the remaining chunks cannot improve on a met target.
		if len(accumulated) >= target {
			break
		}
	}
	res.Rows = accumulated
	log.Debug().Str("url", pageURL).Int("chunks", chunksSent).Int("rows", len(res.Rows)).
		Msg("page extraction complete")
	return res
}

// extractChunk asks the model for rows from one chunk. Provider errors and
// unparseable output both mean zero rows for this chunk, never a failure.
func (e *Extractor) extractChunk(ctx context.Context, chunkText string, req *Request) []rows.Row {
	if max := e.maxChunkChars(); len(chunkText) > max {
		chunkText = chunkText[:max]
	}
	creq := openai.ChatCompletionRequest{
		Model:       req.LLM.Model,
		Temperature: *req.LLM.Temperature,
		N:           1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req.Query, chunkText)},
		},
	}
	if *req.LLM.JSONMode {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := e.Client.CreateChatCompletion(ctx, creq)
	if err != nil && creq.ResponseFormat != nil {
		// Some backends reject response_format outright; ask once more
		// without it and rely on fuzzy parsing instead.
		creq.ResponseFormat = nil
		resp, err = e.Client.CreateChatCompletion(ctx, creq)
	}
	if err != nil {
		log.Debug().Err(err).Msg("model call failed; chunk yields no rows")
		return nil
	}
	if len(resp.Choices) == 0 {
		return nil
	}
	return rows.Parse(resp.Choices[0].Message.Content)
}

func buildUserPrompt(query, chunkText string) string {
	return fmt.Sprintf(
		"USER QUERY:\n%s\n\nCHUNK:\n%s\n\nReturn JSON array of objects. No prose. No markdown.",
		query, chunkText,
	)
}

// perURLTarget splits the global row target across pages: ceil(target/urls),
// at least 1. Advisory, not a cap; a page may overshoot its share within a
// single chunk.
func perURLTarget(target, urls int) int {
	if urls < 1 {
		urls = 1
	}
	per := (target + urls - 1) / urls
	if per < 1 {
		per = 1
	}
	return per
}

func (e *Extractor) charsPerToken() int {
	if e.CharsPerToken > 0 {
		return e.CharsPerToken
	}
	return defaultCharsPerToken
}

func (e *Extractor) maxChunkChars() int {
	if e.MaxChunkChars > 0 {
		return e.MaxChunkChars
	}
	return defaultMaxChunkChars
}

func (e *Extractor) maxParallelURLs() int {
	if e.MaxParallelURLs > 0 {
		return e.MaxParallelURLs
	}
	return defaultMaxParallelURLs
}
