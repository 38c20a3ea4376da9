package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
)

// Canonicalizer extracts the comparison-relevant part of a raw document.
// Implementations are pure and total: they never fail.
type Canonicalizer interface {
	Canonicalize(raw string) string
}

// Mode names a canonicalizer implementation.
type Mode string

const (
	ModeChat Mode = "chat"
	ModeHTML Mode = "html"
	ModeRaw  Mode = "raw"
)

// ParseMode maps a configuration value to a Mode. Empty means ModeChat.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeChat:
		return ModeChat, nil
	case ModeHTML:
		return ModeHTML, nil
	case ModeRaw:
		return ModeRaw, nil
	default:
		return "", fmt.Errorf("%w: unknown canonicalizer %q (want chat, html or raw)", internalerr.ErrInvalidConfig, s)
	}
}

// NewCanonicalizer returns the implementation for mode.
func NewCanonicalizer(mode Mode) (Canonicalizer, error) {
	switch mode {
	case "", ModeChat:
		return NewChatCanonicalizer(), nil
	case ModeHTML:
		return HTMLCanonicalizer{}, nil
	case ModeRaw:
		return RawCanonicalizer{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown canonicalizer %q", internalerr.ErrInvalidConfig, mode)
	}
}

// RawCanonicalizer returns the text trimmed of surrounding whitespace.
type RawCanonicalizer struct{}

func (RawCanonicalizer) Canonicalize(raw string) string {
	return strings.TrimSpace(raw)
}

// Envelope matches one (user, assistant) exchange of a chat template.
// The pattern must have exactly two capture groups: user and assistant content.
type Envelope struct {
	Name    string
	Pattern *regexp.Regexp
}

var (
	// Llama3Envelope matches <|start_header_id|>role<|end_header_id|>...<|eot_id|> turns.
	Llama3Envelope = Envelope{
		Name: "llama3",
		Pattern: regexp.MustCompile(`(?s)<\|start_header_id\|>user<\|end_header_id\|>(.*?)<\|eot_id\|>\s*` +
			`<\|start_header_id\|>assistant<\|end_header_id\|>(.*?)<\|eot_id\|>`),
	}

	// ChatMLEnvelope matches <|im_start|>role\n...<|im_end|> turns.
	ChatMLEnvelope = Envelope{
		Name: "chatml",
		Pattern: regexp.MustCompile(`(?s)<\|im_start\|>user[ \t]*\n(.*?)<\|im_end\|>\s*` +
			`<\|im_start\|>assistant[ \t]*\n(.*?)<\|im_end\|>`),
	}
)

// ChatCanonicalizer keeps only user/assistant payloads of templated dialogues,
// dropping system prompts and control sentinels. Text without a recognized
// envelope is returned trimmed.
type ChatCanonicalizer struct {
	envelopes []Envelope
}

// NewChatCanonicalizer recognizes the Llama 3 and ChatML envelopes, in that order.
// Passing envelopes overrides the defaults.
func NewChatCanonicalizer(envelopes ...Envelope) *ChatCanonicalizer {
	if len(envelopes) == 0 {
		envelopes = []Envelope{Llama3Envelope, ChatMLEnvelope}
	}
	return &ChatCanonicalizer{envelopes: envelopes}
}

// Canonicalize renders every exchange as "user\nassistant" and joins
// exchanges with a blank line. The first envelope that matches wins.
func (c *ChatCanonicalizer) Canonicalize(raw string) string {
	for _, env := range c.envelopes {
		matches := env.Pattern.FindAllStringSubmatch(raw, -1)
		if len(matches) == 0 {
			continue
		}
		pairs := make([]string, 0, len(matches))
		for _, m := range matches {
			pairs = append(pairs, strings.TrimSpace(m[1])+"\n"+strings.TrimSpace(m[2]))
		}
		return strings.Join(pairs, "\n\n")
	}
	return strings.TrimSpace(raw)
}

// HTMLCanonicalizer keeps the visible text of an HTML document.
type HTMLCanonicalizer struct{}

func (HTMLCanonicalizer) Canonicalize(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	var buf strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if buf.Len() > 0 {
					buf.WriteByte(' ')
				}
				buf.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
	}
	extractText(doc)

	return strings.TrimSpace(buf.String())
}
