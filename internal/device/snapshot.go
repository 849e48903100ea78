package device

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxPageText = 8000

// Render formats the snapshot as the text the model sees each turn.
func (s Snapshot) Render() string {
	var b strings.Builder
	if s.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", s.Title)
	}
	if s.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", s.URL)
	}
	if len(s.Elements) > 0 {
		b.WriteString("\n-- ELEMENTS --\n")
		for _, el := range s.Elements {
			label := el.Tag
			if el.Role != "" {
				label += "[" + el.Role + "]"
			}
			fmt.Fprintf(&b, "[%d] %s %q\n", el.Index, label, el.Text)
		}
	}
	if s.Text != "" {
		b.WriteString("\n-- CONTENT --\n")
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "(empty screen)"
	}
	return b.String()
}

// FindElement returns the element with the given index.
func (s Snapshot) FindElement(index int) (Element, bool) {
	for _, el := range s.Elements {
		if el.Index == index {
			return el, true
		}
	}
	return Element{}, false
}

// MatchText returns elements whose visible text contains query, case-insensitively.
// Exact matches come first.
func (s Snapshot) MatchText(query string) []Element {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var exact, partial []Element
	for _, el := range s.Elements {
		text := strings.ToLower(strings.TrimSpace(el.Text))
		switch {
		case text == q:
			exact = append(exact, el)
		case strings.Contains(text, q):
			partial = append(partial, el)
		}
	}
	return append(exact, partial...)
}

// ReadableText extracts the main text content of an HTML page and strips any
// remaining markup.
func ReadableText(html string, pageURL string) (title, text string) {
	parsed, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		parsed = &url.URL{Scheme: "about", Opaque: "blank"}
	}

	p := bluemonday.StrictPolicy()
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		text = p.Sanitize(html)
	} else {
		title = article.Title
		text = p.Sanitize(article.TextContent)
	}

	return title, truncateText(collapseWhitespace(text), maxPageText)
}

// truncateText cuts s to at most max bytes without splitting a rune.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
