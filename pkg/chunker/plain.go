package chunker

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

var (
	paragraphBreakRe = regexp.MustCompile(`\n[ \t]*\n\s*`)
	sentenceEndRe    = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+|[。！？]+`)
)

// span is a half-open byte range into the source text.
type span struct {
	start int
	end   int
}

func (s span) empty() bool {
	return s.end <= s.start
}

func (s span) runes(text string) int {
	return utf8.RuneCountInString(text[s.start:s.end])
}

// piece is a chunk before overlap is applied. text is usually
// text[start:end] but may carry repeated fence lines for split code blocks.
type piece struct {
	start int
	end   int
	text  string
}

func spansToPieces(text string, spans []span) []piece {
	pieces := make([]piece, 0, len(spans))
	for _, s := range spans {
		if s.empty() {
			continue
		}
		pieces = append(pieces, piece{start: s.start, end: s.end, text: text[s.start:s.end]})
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// trimSpan narrows s to exclude leading and trailing whitespace.
func trimSpan(text string, s span) span {
	for s.start < s.end {
		r, size := utf8.DecodeRuneInString(text[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.start += size
	}
	for s.end > s.start {
		r, size := utf8.DecodeLastRuneInString(text[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.end -= size
	}
	return s
}

func appendTrimmed(text string, spans []span, s span) []span {
	if s = trimSpan(text, s); !s.empty() {
		spans = append(spans, s)
	}
	return spans
}

// packSpans greedily merges consecutive units while the merged range stays
// within budget. A unit that alone exceeds budget is handed to split and its
// pieces are emitted as they are.
func packSpans(text string, units []span, budget int, split func(span) []span) []span {
	var out []span
	cur := span{-1, -1}

	flush := func() {
		if cur.start >= 0 {
			out = append(out, cur)
			cur = span{-1, -1}
		}
	}

	for _, u := range units {
		if u.runes(text) > budget {
			flush()
			out = append(out, split(u)...)
			continue
		}
		if cur.start < 0 {
			cur = u
			continue
		}
		if (span{cur.start, u.end}).runes(text) <= budget {
			cur.end = u.end
			continue
		}
		flush()
		cur = u
	}
	flush()

	return out
}

// plainSpans splits s into paragraph-packed spans, breaking oversized
// paragraphs on sentences and oversized sentences at fixed offsets.
// Sentence boundaries falling inside a protected span are ignored.
func plainSpans(text string, s span, budget int, protected []span) []span {
	paragraphs := splitOn(text, s, paragraphBreakRe, nil)
	return packSpans(text, paragraphs, budget, func(p span) []span {
		sentences := splitOn(text, p, sentenceEndRe, protected)
		return packSpans(text, sentences, budget, func(sentence span) []span {
			return hardSplit(text, sentence, budget)
		})
	})
}

// splitOn cuts s at the end of every match of re, trimming whitespace from
// the resulting spans and dropping empty ones.
func splitOn(text string, s span, re *regexp.Regexp, protected []span) []span {
	var out []span
	prev := s.start
	for _, loc := range re.FindAllStringIndex(text[s.start:s.end], -1) {
		cut := s.start + loc[1]
		if insideAny(s.start+loc[0], protected) {
			continue
		}
		out = appendTrimmed(text, out, span{prev, cut})
		prev = cut
	}
	return appendTrimmed(text, out, span{prev, s.end})
}

func insideAny(pos int, spans []span) bool {
	for _, s := range spans {
		if pos > s.start && pos < s.end {
			return true
		}
	}
	return false
}

// hardSplit cuts s every budget characters.
func hardSplit(text string, s span, budget int) []span {
	if budget <= 0 {
		return []span{s}
	}

	var out []span
	start, n := s.start, 0
	for i := range text[s.start:s.end] {
		if n == budget {
			out = append(out, span{start, s.start + i})
			start, n = s.start+i, 0
		}
		n++
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}
