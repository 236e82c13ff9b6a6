package extract

import (
	"fmt"
	"strings"

	"github.com/tabext/tabext/internal/rows"
)

// Extraction strategies. The LLM strategy chunks cleaned page text and asks
// the model for rows; the table strategy reads <table> markup directly and
// never touches the model.
const (
	StrategyLLM   = "llm"
	StrategyTable = "table"
)

// Request bounds follow the upstream API contract.
const (
	DefaultTargetRows = 25
	MaxTargetRows     = 2000
	DefaultWindowSize = 600
	MinWindowSize     = 200
	MaxWindowSize     = 4000
	DefaultOverlap    = 60
	MaxOverlap        = 1000
)

// ChunkingOptions sizes the text windows sent to the model. Both values are
// token-oriented; the extractor scales them to characters.
type ChunkingOptions struct {
	WindowSize *int `json:"window_size"`
	Overlap    *int `json:"overlap"`
}

// LLMOptions selects and tunes the extraction model.
type LLMOptions struct {
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature"`
	JSONMode    *bool    `json:"json_mode"`
}

// Request is the inbound extraction job: which pages to read, what to look
// for, and how many rows the caller wants in total.
type Request struct {
	URLs       []string         `json:"urls"`
	Query      string           `json:"query"`
	TargetRows int              `json:"target_rows"`
	Strategy   string           `json:"strategy"`
	Schema     []map[string]any `json:"schema,omitempty"`
	Chunking   *ChunkingOptions `json:"chunking"`
	LLM        *LLMOptions      `json:"llm"`
	Filters    map[string]any   `json:"filters,omitempty"`
}

// PageResult is the outcome for one requested URL. A failed fetch leaves
// Rows empty rather than erroring the whole request.
type PageResult struct {
	URL   string     `json:"url"`
	Title string     `json:"title,omitempty"`
	Rows  []rows.Row `json:"rows"`
}

// Response is the overall result: one PageResult per requested URL in
// request order, plus a flattened CSV view of every extracted row. Error is
// set only when the request as a whole could not be processed.
type Response struct {
	Success bool         `json:"success"`
	Results []PageResult `json:"results"`
	CSV     string       `json:"csv,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Normalize fills absent optional fields with their defaults. Call before
// Validate so range checks see concrete values.
func (r *Request) Normalize() {
	if r.TargetRows == 0 {
		r.TargetRows = DefaultTargetRows
	}
	if r.Strategy == "" {
		r.Strategy = StrategyLLM
	}
	if r.Chunking == nil {
		r.Chunking = &ChunkingOptions{}
	}
	if r.Chunking.WindowSize == nil {
		r.Chunking.WindowSize = intPtr(DefaultWindowSize)
	}
	if r.Chunking.Overlap == nil {
		r.Chunking.Overlap = intPtr(DefaultOverlap)
	}
	if r.LLM == nil {
		r.LLM = &LLMOptions{}
	}
	if r.LLM.Provider == "" {
		r.LLM.Provider = "openai"
	}
	if r.LLM.Temperature == nil {
		temp := float32(0.1)
		r.LLM.Temperature = &temp
	}
	if r.LLM.JSONMode == nil {
		mode := true
		r.LLM.JSONMode = &mode
	}
}

// Validate rejects malformed requests before any URL work starts. It
// assumes Normalize has run.
func (r *Request) Validate() error {
	if len(r.URLs) == 0 {
		return fmt.Errorf("no URLs provided")
	}
	for i, u := range r.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("urls[%d] is empty", i)
		}
	}
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query must not be empty")
	}
	if r.TargetRows < 1 || r.TargetRows > MaxTargetRows {
		return fmt.Errorf("target_rows must be between 1 and %d", MaxTargetRows)
	}
	if r.Strategy != StrategyLLM && r.Strategy != StrategyTable {
		return fmt.Errorf("unknown strategy: %q", r.Strategy)
	}
	window, overlap := *r.Chunking.WindowSize, *r.Chunking.Overlap
	if window < MinWindowSize || window > MaxWindowSize {
		return fmt.Errorf("chunking.window_size must be between %d and %d", MinWindowSize, MaxWindowSize)
	}
	if overlap < 0 || overlap > MaxOverlap {
		return fmt.Errorf("chunking.overlap must be between 0 and %d", MaxOverlap)
	}
	if overlap >= window {
		return fmt.Errorf("chunking.overlap must be smaller than window_size")
	}
	if t := *r.LLM.Temperature; t < 0 || t > 1 {
		return fmt.Errorf("llm.temperature must be between 0 and 1")
	}
	return nil
}

func intPtr(v int) *int { return &v }
