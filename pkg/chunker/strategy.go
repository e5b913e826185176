package chunker

import (
	"regexp"
	"strings"
)

// Strategy identifies how a text is split.
type Strategy int

const (
	// StrategyPlain splits on paragraphs, then sentences.
	StrategyPlain Strategy = iota

	// StrategyMarkdown splits on header and list-item anchors.
	StrategyMarkdown

	// StrategyCode keeps code spans intact and splits the prose around them.
	StrategyCode
)

func (s Strategy) String() string {
	switch s {
	case StrategyMarkdown:
		return "markdown"
	case StrategyCode:
		return "code"
	default:
		return "plain"
	}
}

var (
	fenceProbeRe  = regexp.MustCompile("(?m)^[ \t]*(?:```|~~~)")
	inlineCodeRe  = regexp.MustCompile("`[^`\n]+`")
	headerProbeRe = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+\S`)
	listProbeRe   = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d{1,9}[.)])[ \t]+\S`)

	fencedBlockRe = regexp.MustCompile("(?ms)^[ \t]*(?:```|~~~)[^\n]*\n.*?^[ \t]*(?:```|~~~)[ \t]*$")
	anchorRe      = regexp.MustCompile(`(?m)^(?:[ \t]{0,3}#{1,6}[ \t]+\S|[ \t]*(?:[-*+]|\d{1,9}[.)])[ \t]+\S)`)
)

// Detect classifies text by probing for code first, then for markdown
// structure (headers together with list items), defaulting to plain prose.
func Detect(text string) Strategy {
	switch {
	case fenceProbeRe.MatchString(text) || inlineCodeRe.MatchString(text):
		return StrategyCode
	case headerProbeRe.MatchString(text) && listProbeRe.MatchString(text):
		return StrategyMarkdown
	default:
		return StrategyPlain
	}
}

// markdownPieces treats every header or list-item line as the start of a
// section running to the next anchor, then packs sections under budget.
// Oversized sections fall back to plain splitting.
func markdownPieces(text string, budget int) []piece {
	locs := anchorRe.FindAllStringIndex(text, -1)

	var sections []span
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			sections = appendTrimmed(text, sections, span{prev, loc[0]})
		}
		prev = loc[0]
	}
	sections = appendTrimmed(text, sections, span{prev, len(text)})

	packed := packSpans(text, sections, budget, func(s span) []span {
		return plainSpans(text, s, budget, nil)
	})
	return spansToPieces(text, packed)
}

// codePieces splits text into fenced code blocks and the prose between them.
// Prose is split with the plain strategy, protecting inline code spans from
// sentence boundaries. Each fenced block becomes its own chunk when it fits
// and is otherwise split by lines with its fence lines repeated on every
// piece.
func codePieces(text string, budget int) []piece {
	var pieces []piece

	prose := func(s span) {
		s = trimSpan(text, s)
		if s.empty() {
			return
		}
		protected := inlineCodeSpans(text, s)
		pieces = append(pieces, spansToPieces(text, plainSpans(text, s, budget, protected))...)
	}

	prev := 0
	for _, loc := range fencedBlockRe.FindAllStringIndex(text, -1) {
		prose(span{prev, loc[0]})
		pieces = append(pieces, fencePieces(text, trimSpan(text, span{loc[0], loc[1]}), budget)...)
		prev = loc[1]
	}
	prose(span{prev, len(text)})

	return pieces
}

// inlineCodeSpans returns the absolute spans of inline code inside s.
func inlineCodeSpans(text string, s span) []span {
	var out []span
	for _, loc := range inlineCodeRe.FindAllStringIndex(text[s.start:s.end], -1) {
		out = append(out, span{s.start + loc[0], s.start + loc[1]})
	}
	return out
}

// fencePieces keeps a fenced block whole when it fits, otherwise splits its
// body by lines so that every piece is itself a well-formed fenced block.
func fencePieces(text string, block span, budget int) []piece {
	if block.runes(text) <= budget {
		return []piece{{start: block.start, end: block.end, text: text[block.start:block.end]}}
	}

	raw := text[block.start:block.end]
	firstNL := strings.IndexByte(raw, '\n')
	lastNL := strings.LastIndexByte(raw, '\n')
	if firstNL < 0 || lastNL <= firstNL {
		return spansToPieces(text, hardSplit(text, block, budget))
	}

	opener := strings.TrimRight(raw[:firstNL], " \t\r")
	closer := strings.TrimSpace(raw[lastNL+1:])
	bodyBudget := budget - runeLen(opener) - runeLen(closer) - 2
	if bodyBudget <= 0 {
		return spansToPieces(text, hardSplit(text, block, budget))
	}

	body := span{block.start + firstNL + 1, block.start + lastNL}
	lines := lineSpans(text, body)
	packed := packSpans(text, lines, bodyBudget, func(s span) []span {
		return hardSplit(text, s, bodyBudget)
	})

	pieces := make([]piece, 0, len(packed))
	for _, s := range packed {
		pieces = append(pieces, piece{
			start: s.start,
			end:   s.end,
			text:  opener + "\n" + text[s.start:s.end] + "\n" + closer,
		})
	}
	return pieces
}

// lineSpans returns one span per line of s, without the newline.
func lineSpans(text string, s span) []span {
	var out []span
	start := s.start
	for i := s.start; i < s.end; i++ {
		if text[i] == '\n' {
			out = append(out, span{start, i})
			start = i + 1
		}
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}
