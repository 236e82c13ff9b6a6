package clean

import (
	"strings"
	"testing"
)

func TestFromHTML_StripsScriptAndStyle(t *testing.T) {
	doc := FromHTML([]byte(`<html><head><title>Widgets</title>
		<style>body { color: red }</style></head>
		<body><script>alert("hi")</script><p>visible</p>
		<noscript>enable js</noscript></body></html>`))
	if doc.Title != "Widgets" {
		t.Fatalf("title = %q, want Widgets", doc.Title)
	}
	if !strings.Contains(doc.Text, "visible") {
		t.Fatalf("text missing visible content: %q", doc.Text)
	}
	for _, banned := range []string{"alert", "color: red", "enable js"} {
		if strings.Contains(doc.Text, banned) {
			t.Fatalf("text contains stripped content %q: %q", banned, doc.Text)
		}
	}
}

func TestFromHTML_CollapsesBlankLines(t *testing.T) {
	doc := FromHTML([]byte("<body><p>one</p>\n\n\n\n<p>two</p></body>"))
	if strings.Contains(doc.Text, "\n\n\n") {
		t.Fatalf("blank lines not collapsed: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "one") || !strings.Contains(doc.Text, "two") {
		t.Fatalf("paragraph text lost: %q", doc.Text)
	}
}

func TestFromHTML_TableCellsSeparated(t *testing.T) {
	doc := FromHTML([]byte("<body><table><tr><td>a</td><td>b</td></tr></table></body>"))
	if !strings.Contains(doc.Text, "a b") {
		t.Fatalf("expected cell separation, got %q", doc.Text)
	}
}

func TestFromHTML_NoTitle(t *testing.T) {
	doc := FromHTML([]byte("<body>plain</body>"))
	if doc.Title != "" {
		t.Fatalf("expected empty title, got %q", doc.Title)
	}
	if doc.Text != "plain" {
		t.Fatalf("text = %q, want plain", doc.Text)
	}
}

func TestFromHTML_EmptyInput(t *testing.T) {
	doc := FromHTML(nil)
	if doc.Text != "" || doc.Title != "" {
		t.Fatalf("expected zero document, got %+v", doc)
	}
}
