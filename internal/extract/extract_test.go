package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// fakeFetcher serves canned HTML per URL and fails for URLs it does not know.
type fakeFetcher struct {
	pages map[string]string
	calls atomic.Int32
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	page, ok := f.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return []byte(page), nil
}

// fakeModel returns a fixed reply per call index and counts invocations.
type fakeModel struct {
	replies []string
	calls   atomic.Int32
	err     error
}

func (m *fakeModel) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	n := int(m.calls.Add(1)) - 1
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	reply := "[]"
	if n < len(m.replies) {
		reply = m.replies[n]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func page(body string) string {
	return "<html><head><title>Fixture</title></head><body>" + body + "</body></html>"
}

func basicRequest(urls ...string) Request {
	return Request{
		URLs:       urls,
		Query:      "list the widgets",
		TargetRows: 10,
	}
}

func TestRun_MissingCredential(t *testing.T) {
	e := &Extractor{Fetcher: &fakeFetcher{}, Client: &fakeModel{}, HasCredential: false}
	resp := e.Run(context.Background(), basicRequest("http://a.example"))
	if resp.Success {
		t.Fatalf("expected failure without credential")
	}
	if resp.Error == "" {
		t.Fatalf("expected explanatory error")
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(resp.Results))
	}
}

func TestRun_UnsupportedProvider(t *testing.T) {
	e := &Extractor{Fetcher: &fakeFetcher{}, Client: &fakeModel{}, HasCredential: true}
	req := basicRequest("http://a.example")
	req.LLM = &LLMOptions{Provider: "anthropic"}
	resp := e.Run(context.Background(), req)
	if resp.Success || !strings.Contains(resp.Error, "anthropic") {
		t.Fatalf("expected unsupported provider error, got %+v", resp)
	}
}

func TestRun_OneFailedFetchDoesNotAbort(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://good.example": page("<p>" + strings.Repeat("widget data ", 40) + "</p>"),
	}}
	model := &fakeModel{replies: []string{`[{"widget":"w1"},{"widget":"w2"}]`}}
	e := &Extractor{Fetcher: fetcher, Client: model, HasCredential: true, DefaultModel: "gpt-4o-mini"}

	resp := e.Run(context.Background(), basicRequest("http://down.example", "http://good.example"))
	if !resp.Success {
		t.Fatalf("expected overall success, got error %q", resp.Error)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 page results, got %d", len(resp.Results))
	}
	if resp.Results[0].URL != "http://down.example" || len(resp.Results[0].Rows) != 0 {
		t.Fatalf("failed page should come first with empty rows: %+v", resp.Results[0])
	}
	if resp.Results[0].Rows == nil {
		t.Fatalf("rows must be an empty slice, not nil")
	}
	if len(resp.Results[1].Rows) != 2 {
		t.Fatalf("expected 2 rows for good page, got %d", len(resp.Results[1].Rows))
	}
	if resp.Results[1].Title != "Fixture" {
		t.Fatalf("title not propagated: %+v", resp.Results[1])
	}
}

func TestRun_EarlyStopSkipsRemainingChunks(t *testing.T) {
	// Long enough text for several chunks at the smallest window.
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://a.example": page("<p>" + strings.Repeat("row material ", 2000) + "</p>"),
	}}
	// First chunk already satisfies the per-URL target of 3.
	model := &fakeModel{replies: []string{`[{"n":1},{"n":2},{"n":3}]`}}
	e := &Extractor{Fetcher: fetcher, Client: model, HasCredential: true, DefaultModel: "gpt-4o-mini"}

	req := basicRequest("http://a.example")
	req.TargetRows = 3
	req.Chunking = &ChunkingOptions{WindowSize: intPtr(200), Overlap: intPtr(0)}
	resp := e.Run(context.Background(), req)
	if !resp.Success {
		t.Fatalf("unexpected failure: %q", resp.Error)
	}
	if got := model.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 model call after early stop, got %d", got)
	}
	if len(resp.Results[0].Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(resp.Results[0].Rows))
	}
}

func TestRun_AccumulatesAndDedupesAcrossChunks(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://a.example": page("<p>" + strings.Repeat("row material ", 2000) + "</p>"),
	}}
	model := &fakeModel{replies: []string{
		`[{"n":1}]`,
		`[{"n":1},{"n":2}]`,
		`[{"n":3}]`,
	}}
	e := &Extractor{Fetcher: fetcher, Client: model, HasCredential: true, DefaultModel: "gpt-4o-mini"}

	req := basicRequest("http://a.example")
	req.TargetRows = 3
	req.Chunking = &ChunkingOptions{WindowSize: intPtr(200), Overlap: intPtr(0)}
	resp := e.Run(context.Background(), req)
	got := resp.Results[0].Rows
	if len(got) != 3 {
		t.Fatalf("expected 3 deduplicated rows, got %d: %v", len(got), got)
	}
	if got[0]["n"] != float64(1) || got[1]["n"] != float64(2) || got[2]["n"] != float64(3) {
		t.Fatalf("first-appearance order lost: %v", got)
	}
}

func TestRun_ChunksExhaustedBelowTarget(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://a.example": page("<p>short text</p>"),
	}}
	model := &fakeModel{replies: []string{`[{"only":"row"}]`}}
	e := &Extractor{Fetcher: fetcher, Client: model, HasCredential: true, DefaultModel: "gpt-4o-mini"}

	resp := e.Run(context.Background(), basicRequest("http://a.example"))
	if !resp.Success {
		t.Fatalf("unexpected failure: %q", resp.Error)
	}
	if len(resp.Results[0].Rows) != 1 {
		t.Fatalf("expected the single available row, got %d", len(resp.Results[0].Rows))
	}
}

func TestRun_ModelErrorsYieldZeroRows(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://a.example": page("<p>some text to chunk</p>"),
	}}
	model := &fakeModel{err: errors.New("provider exploded")}
	e := &Extractor{Fetcher: fetcher, Client: model, HasCredential: true, DefaultModel: "gpt-4o-mini"}

	resp := e.Run(context.Background(), basicRequest("http://a.example"))
	if !resp.Success {
		t.Fatalf("model failure must stay local: %q", resp.Error)
	}
	if len(resp.Results[0].Rows) != 0 {
		t.Fatalf("expected zero rows, got %v", resp.Results[0].Rows)
	}
	// JSON-mode call plus one fallback retry without response_format.
	if got := model.calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls (strict + fallback), got %d", got)
	}
}

func TestRun_TableStrategySkipsModel(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://a.example": page(`<table>
			<tr><th>Name</th><th>Qty</th></tr>
			<tr><td>bolt</td><td>4</td></tr>
			<tr><td>bolt</td><td>4</td></tr>
			<tr><td>nut</td><td>9</td></tr>
		</table>`),
	}}
	model := &fakeModel{}
	// No credential needed for the table strategy.
	e := &Extractor{Fetcher: fetcher, Client: model, HasCredential: false}

	req := basicRequest("http://a.example")
	req.Strategy = StrategyTable
	resp := e.Run(context.Background(), req)
	if !resp.Success {
		t.Fatalf("unexpected failure: %q", resp.Error)
	}
	if got := model.calls.Load(); got != 0 {
		t.Fatalf("table strategy must not call the model, got %d calls", got)
	}
	if len(resp.Results[0].Rows) != 2 {
		t.Fatalf("expected 2 deduplicated table rows, got %d", len(resp.Results[0].Rows))
	}
}

func TestRun_PreservesURLOrderUnderConcurrency(t *testing.T) {
	pages := map[string]string{}
	var urls []string
	for i := 0; i < 8; i++ {
		u := fmt.Sprintf("http://site%d.example", i)
		urls = append(urls, u)
		pages[u] = page(fmt.Sprintf("<p>page %d</p>", i))
	}
	fetcher := &fakeFetcher{pages: pages}
	e := &Extractor{Fetcher: fetcher, Client: &fakeModel{}, HasCredential: true,
		DefaultModel: "gpt-4o-mini", MaxParallelURLs: 3}

	resp := e.Run(context.Background(), basicRequest(urls...))
	if len(resp.Results) != len(urls) {
		t.Fatalf("expected %d results, got %d", len(urls), len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.URL != urls[i] {
			t.Fatalf("result %d has URL %q, want %q", i, r.URL, urls[i])
		}
	}
}

func TestRun_CSVAggregatesAllPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://a.example": page("<p>text</p>"),
	}}
	model := &fakeModel{replies: []string{`[{"name":"Ada"}]`}}
	e := &Extractor{Fetcher: fetcher, Client: model, HasCredential: true, DefaultModel: "gpt-4o-mini"}

	resp := e.Run(context.Background(), basicRequest("http://a.example"))
	if !strings.HasPrefix(resp.CSV, "name\n") || !strings.Contains(resp.CSV, "Ada") {
		t.Fatalf("unexpected CSV: %q", resp.CSV)
	}
}

func TestPerURLTarget(t *testing.T) {
	cases := []struct {
		target, urls, want int
	}{
		{25, 4, 7},
		{1, 1, 1},
		{10, 2, 5},
		{10, 3, 4},
		{2, 5, 1},
		{0, 3, 1},
	}
	for _, tc := range cases {
		if got := perURLTarget(tc.target, tc.urls); got != tc.want {
			t.Errorf("perURLTarget(%d, %d) = %d, want %d", tc.target, tc.urls, got, tc.want)
		}
	}
}
