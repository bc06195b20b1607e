package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const pageStyle = `body{font-family:sans-serif;margin:2em;color:#222}
table{border-collapse:collapse;margin-bottom:1.5em}
th,td{border:1px solid #ccc;padding:4px 8px;text-align:left}
td.status-failed{color:#b00020;font-weight:bold}
td.status-skipped{color:#777}
td.status-ok{color:#1b7f3b}`

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML renders the run as a standalone HTML page. Status cells carry a
// status-<value> class so failures stand out.
func HTML(r Run) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert(Markdown(r), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(&body, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}

	var out bytes.Buffer
	title := "Run report"
	if r.ID != "" {
		title += " " + r.ID
	}
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>\n",
		html.EscapeString(title), pageStyle)
	for _, n := range nodes {
		markStatusCells(n)
		if err := html.Render(&out, n); err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
	}
	out.WriteString("</body></html>\n")
	return out.Bytes(), nil
}

// markStatusCells tags the second cell of every table row with its status.
func markStatusCells(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
		col := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.DataAtom != atom.Td {
				continue
			}
			col++
			if col == 2 {
				status := strings.TrimSpace(textOf(c))
				c.Attr = append(c.Attr, html.Attribute{Key: "class", Val: "status-" + status})
			}
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		markStatusCells(c)
	}
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}
