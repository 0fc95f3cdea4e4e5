// Package plaintext converts gateway email bodies, HTML or already plain, into
// text with line structure preserved.
package plaintext

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var (
	// Elements dropped together with their subtree. Signature classes are
	// matched separately since attribute selectors are case-sensitive.
	dropSelector = "head, style, script, noscript, img, blockquote, [data-signature]"

	// blockElements end with a line break
	blockElements = map[string]bool{
		"div": true, "h1": true, "h2": true, "h3": true, "h4": true,
		"h5": true, "h6": true, "li": true, "pre": true, "table": true,
		"tr": true, "section": true, "article": true, "header": true,
		"footer": true, "ul": true, "ol": true, "hr": true,
	}

	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
)

// Extract returns the visible text of body. Markup-free input passes through
// with entities decoded and whitespace tidied.
func Extract(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return tidy(html.UnescapeString(body))
	}

	doc.Find(dropSelector).Remove()
	doc.Find("[class]").FilterFunction(func(i int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return strings.Contains(strings.ToLower(class), "signature")
	}).Remove()

	doc.Find("br").Each(func(i int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if n.Parent != nil {
				n.Parent.InsertBefore(textNode("\n"), n)
			}
		}
	}).Remove()

	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch {
		case name == "p":
			s.Nodes[0].AppendChild(textNode("\n\n"))
		case blockElements[name]:
			s.Nodes[0].AppendChild(textNode("\n"))
		}
	})

	return tidy(doc.Text())
}

func textNode(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

// tidy applies NFC, unifies line endings and squeezes horizontal runs.
func tidy(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = norm.NFC.String(text)
	text = horizontalSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
