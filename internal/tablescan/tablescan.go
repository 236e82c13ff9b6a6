package tablescan

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/tabext/tabext/internal/rows"
)

// Scan pulls rows out of every <table> in the document. The first table row
// supplies the column names (th preferred, td accepted); each following row
// whose cell count matches the header becomes one extracted row. Tables with
// fewer than two rows, and rows whose cell count disagrees with the header,
// are skipped. The table count is reported alongside the rows.
func Scan(input []byte) ([]rows.Row, int) {
	root, err := html.Parse(bytes.NewReader(input))
	if err != nil || root == nil {
		return nil, 0
	}
	var out []rows.Row
	tables := 0
	walkTables(root, func(table *html.Node) {
		tables++
		out = append(out, tableRows(table)...)
	})
	return out, tables
}

func walkTables(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "table") {
		visit(n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkTables(c, visit)
	}
}

func tableRows(table *html.Node) []rows.Row {
	trs := elements(table, "tr")
	if len(trs) < 2 {
		return nil
	}
	headers := headerNames(trs[0])
	if len(headers) == 0 {
		return nil
	}
	var out []rows.Row
	for _, tr := range trs[1:] {
		cells := elements(tr, "td")
		if len(cells) != len(headers) {
			continue
		}
		row := make(rows.Row, len(headers))
		for i, cell := range cells {
			row[headers[i]] = innerText(cell)
		}
		out = append(out, row)
	}
	return out
}

func headerNames(tr *html.Node) []string {
	cells := elements(tr, "th")
	if len(cells) == 0 {
		cells = elements(tr, "td")
	}
	names := make([]string, 0, len(cells))
	for _, cell := range cells {
		name := innerText(cell)
		if name == "" {
			name = fmt.Sprintf("column_%d", len(names)+1)
		}
		names = append(names, name)
	}
	return names
}

// elements collects descendant elements of tag, without descending into
// nested tables.
func elements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && strings.EqualFold(c.Data, "table") {
				continue
			}
			if c.Type == html.ElementNode && strings.EqualFold(c.Data, tag) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
