package chat

import (
	"regexp"
	"strings"
	"unicode"
)

// ReplyKind is the shape a model reply was labelled with.
type ReplyKind int

const (
	KindFallback ReplyKind = iota
	KindParagraphs
	KindPoints
	KindUnclear
)

func (k ReplyKind) String() string {
	switch k {
	case KindParagraphs:
		return "PARAGRAPHS"
	case KindPoints:
		return "POINTS"
	case KindUnclear:
		return "UNCLEAR"
	default:
		return "FALLBACK"
	}
}

// FallbackReply replaces any reply that carries no known label.
const FallbackReply = `UNCLEAR: Please provide a clear request (e.g., "write a poem" or "count from 1 to 5").`

var (
	labels = []struct {
		prefix string
		kind   ReplyKind
	}{
		{"PARAGRAPHS:", KindParagraphs},
		{"POINTS:", KindPoints},
		{"UNCLEAR:", KindUnclear},
	}

	paragraphBreak = regexp.MustCompile(`\. |\n`)

	// whitespace is the ECMAScript set: ASCII space chars, \v, Zs, line/paragraph separators and BOM
	pointMarker = regexp.MustCompile(`\d+\.[\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{FEFF}]|-+[\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{FEFF}]`)
)

// isSpace matches the same set as pointMarker's whitespace class. It differs from
// unicode.IsSpace on U+0085 and U+FEFF.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', '\u2028', '\u2029', '\uFEFF':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func trim(s string) string {
	return strings.TrimFunc(s, isSpace)
}

// Reply is a parsed model reply: its kind and the text after the label.
type Reply struct {
	Kind ReplyKind
	Body string
}

// ParseReply classifies raw by its case-insensitive label, which must be the very first
// characters of the reply.
func ParseReply(raw string) Reply {
	for _, l := range labels {
		if len(raw) >= len(l.prefix) && strings.EqualFold(raw[:len(l.prefix)], l.prefix) {
			return Reply{Kind: l.kind, Body: raw[len(l.prefix):]}
		}
	}
	return Reply{Kind: KindFallback}
}

// Normalize renders the reply in its canonical form.
func (r Reply) Normalize() string {
	switch r.Kind {
	case KindParagraphs:
		return withPeriod(joinNonEmpty(paragraphBreak.Split(r.Body, -1), ".\n"))
	case KindPoints:
		items := joinNonEmpty(splitKeep(pointMarker, r.Body), "\n")
		return withPeriod(joinNonEmpty(strings.Split(items, ". "), ".\n"))
	case KindUnclear:
		return trim(r.Body)
	default:
		return FallbackReply
	}
}

func NormalizeReply(raw string) string {
	return ParseReply(raw).Normalize()
}

// splitKeep splits s around matches of re and keeps each match as its own fragment.
func splitKeep(re *regexp.Regexp, s string) []string {
	var out []string
	last := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		out = append(out, s[last:loc[0]], s[loc[0]:loc[1]])
		last = loc[1]
	}
	return append(out, s[last:])
}

// joinNonEmpty trims every part, drops empty ones and joins the rest.
func joinNonEmpty(parts []string, sep string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = trim(p); p != "" {
			kept = append(kept, p)
		}
	}
	return trim(strings.Join(kept, sep))
}

func withPeriod(s string) string {
	if strings.HasSuffix(s, ".") {
		return s
	}
	return s + "."
}
