package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// HTMLToMarkdown converts rich-text HTML from the API into Discord-flavored
// markdown. Unknown tags are stripped, their children kept.
func HTMLToMarkdown(value string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		// Unparseable markup: better to show it raw than to drop it.
		return strings.TrimSpace(value)
	}

	var b strings.Builder
	for _, node := range doc.Selection.Nodes {
		renderNode(node, &b)
	}

	text := excessNewlines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(text)
}

func renderNode(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "br":
			b.WriteString("\n")
			return
		case "p":
			renderChildren(n, b)
			b.WriteString("\n\n")
			return
		case "strong", "b":
			b.WriteString("**")
			renderChildren(n, b)
			b.WriteString("**")
			return
		case "em", "i":
			b.WriteString("*")
			renderChildren(n, b)
			b.WriteString("*")
			return
		case "u":
			b.WriteString("__")
			renderChildren(n, b)
			b.WriteString("__")
			return
		case "s", "strike", "del":
			b.WriteString("~~")
			renderChildren(n, b)
			b.WriteString("~~")
			return
		case "li":
			b.WriteString("\n- ")
			renderChildren(n, b)
			return
		case "ul", "ol":
			renderChildren(n, b)
			b.WriteString("\n")
			return
		case "a":
			renderAnchor(n, b)
			return
		case "script", "style":
			return
		}
	}
	renderChildren(n, b)
}

func renderChildren(n *html.Node, b *strings.Builder) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		renderNode(child, b)
	}
}

func renderAnchor(n *html.Node, b *strings.Builder) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}

	var inner strings.Builder
	renderChildren(n, &inner)
	label := strings.TrimSpace(inner.String())

	if href == "" {
		b.WriteString(label)
		return
	}
	if label == "" {
		label = href
	}
	b.WriteString("[")
	b.WriteString(label)
	b.WriteString("](")
	b.WriteString(href)
	b.WriteString(")")
}

// FormatRichText converts HTML to markdown when the value looks like markup,
// then truncates to maxLen.
func FormatRichText(value string, maxLen int) string {
	text := value
	if strings.Contains(value, "<") && strings.Contains(value, ">") {
		text = HTMLToMarkdown(value)
	}
	return Truncate(text, maxLen)
}

// Truncate trims the value and shortens it to maxLen bytes with a trailing
// ellipsis, never cutting inside a UTF-8 sequence.
func Truncate(value string, maxLen int) string {
	text := strings.TrimSpace(value)
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
