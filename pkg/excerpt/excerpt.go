// Package excerpt turns rich-text element values into short plain-text
// previews for the panel.
package excerpt

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Ellipsis is appended to truncated excerpts.
const Ellipsis = "…"

// articleRunes is the text length above which readability is used to drop
// boilerplate around the main content.
const articleRunes = 600

var baseURL = &url.URL{Scheme: "https", Host: "app.kontent.ai"}

// Extractor builds excerpts. The Japanese tokenizer is loaded on first use.
type Extractor struct {
	logger *zap.Logger

	once   sync.Once
	tok    *tokenizer.Tokenizer
	tokErr error
}

// New creates an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Text returns the visible text of an HTML fragment with ruby annotations
// removed and whitespace collapsed.
func (e *Extractor) Text(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	clean := SanitizeRuby([]byte(body))
	text := fragmentText(clean)
	if utf8.RuneCountInString(text) < articleRunes {
		return text
	}
	article, err := readability.FromReader(bytes.NewReader(clean), baseURL)
	if err != nil {
		e.logger.Debug("readability failed, using raw text", zap.Error(err))
		return text
	}
	if t := collapse(article.TextContent); t != "" {
		return t
	}
	return text
}

// Excerpt returns at most maxRunes runes of the text of body, followed by
// Ellipsis when cut. Japanese text is cut at a sentence or word boundary
// found by morphological analysis; other text at the last space.
func (e *Extractor) Excerpt(body, languageCodename string, maxRunes int) string {
	text := e.Text(body)
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	var cut string
	if isJapanese(languageCodename) {
		cut = e.cutJapanese(text, maxRunes)
	} else {
		cut = cutAtSpace(text, maxRunes)
	}
	return strings.TrimRight(cut, " 、,") + Ellipsis
}

func isJapanese(codename string) bool {
	c := strings.ToLower(codename)
	return c == "ja" || strings.HasPrefix(c, "ja-") || strings.HasPrefix(c, "ja_")
}

func (e *Extractor) tokenizer() (*tokenizer.Tokenizer, error) {
	e.once.Do(func() {
		e.tok, e.tokErr = tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
		if e.tokErr != nil {
			e.logger.Warn("japanese tokenizer unavailable", zap.Error(e.tokErr))
		}
	})
	return e.tok, e.tokErr
}

// cutJapanese prefers the last complete sentence that fits, then the last
// whole token.
func (e *Extractor) cutJapanese(text string, maxRunes int) string {
	var b strings.Builder
	for _, s := range splitSentences(text) {
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(s) > maxRunes {
			break
		}
		b.WriteString(s)
	}
	if b.Len() > 0 {
		return b.String()
	}

	t, err := e.tokenizer()
	if err != nil {
		return truncateRunes(text, maxRunes)
	}
	end, runes := 0, 0
	for _, tok := range t.Tokenize(text) {
		if tok.Class == tokenizer.DUMMY || tok.Surface == "" {
			continue
		}
		i := strings.Index(text[end:], tok.Surface)
		if i < 0 {
			break
		}
		next := end + i + len(tok.Surface)
		n := runes + utf8.RuneCountInString(text[end:next])
		if n > maxRunes {
			break
		}
		end, runes = next, n
	}
	if end == 0 {
		return truncateRunes(text, maxRunes)
	}
	return text[:end]
}

func cutAtSpace(text string, maxRunes int) string {
	head := truncateRunes(text, maxRunes)
	if i := strings.LastIndexByte(head, ' '); i > 0 {
		return head[:i]
	}
	return head
}

func truncateRunes(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		// 。(3002), ！(FF01), ？(FF1F)
		if r == '。' || r == '！' || r == '？' || r == '\n' {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses
// (<rp>...</rp>) so furigana is not duplicated into the extracted text
// (e.g. "漢字" becoming "漢字かんじ").
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "tr": true, "td": true, "th": true, "figure": true, "object": true,
}

// fragmentText walks the parsed fragment and joins its text nodes.
func fragmentText(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return collapse(string(body))
	}
	var b strings.Builder
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte(' ')
		}
	}
	visit(doc)
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
