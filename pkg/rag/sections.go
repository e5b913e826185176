package rag

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	// maxHeadingLen bounds the length of a line treated as a heading.
	maxHeadingLen = 80

	// maxHeadingWords bounds the words in a capitalized heading line.
	maxHeadingWords = 10
)

var (
	dividerRe     = regexp.MustCompile(`(?m)(?:\n[ \t]*){3,}|^[ \t]*(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	sentenceEndRe = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+|[。！？]+`)
)

// section is a major subdivision of a long article.
type section struct {
	Title string

	// Text is the section content, heading line included.
	Text string

	// body is the offset in Text where the content after the heading starts.
	body int
}

// Body returns the section content without its heading line.
func (s section) Body() string {
	return strings.TrimSpace(s.Text[s.body:])
}

type sectionOptions struct {
	min      int
	max      int
	partSize int
}

func (p *Pipeline) sectionOpts() sectionOptions {
	return sectionOptions{
		min:      p.minSections,
		max:      p.maxSections,
		partSize: p.chunker.MaxChars(),
	}
}

// cut marks the start of a section within the source text.
type cut struct {
	pos   int
	title string

	// body is the offset of the content after the heading line, relative to
	// pos. Zero when the cut has no heading line.
	body int
}

// extractSections splits body into sections, preferring markdown headers,
// then capitalized heading lines, then strong dividers, then a length based
// partition snapped to sentence boundaries. Text before the first heading is
// merged into the first section. The result is capped at opts.max sections
// by merging neighbours.
func extractSections(body string, opts sectionOptions) ([]section, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrTooFewSections
	}

	var sections []section
	switch {
	case tryCuts(body, markdownCuts(body), &sections):
	case tryCuts(body, headingLineCuts(body), &sections):
	case tryDividers(body, &sections):
	default:
		sections = partition(body, opts)
	}

	if len(sections) < 2 {
		return nil, ErrTooFewSections
	}
	if len(sections) > opts.max {
		sections = mergeSections(sections, opts.max)
	}
	return sections, nil
}

func tryCuts(body string, cuts []cut, out *[]section) bool {
	if len(cuts) < 2 {
		return false
	}
	s := sectionsFromCuts(body, cuts)
	if len(s) < 2 {
		return false
	}
	*out = s
	return true
}

// sectionsFromCuts turns heading positions into sections. The first section
// starts at the beginning of body so that intro text is kept.
func sectionsFromCuts(body string, cuts []cut) []section {
	var out []section
	for i, c := range cuts {
		start := c.pos
		bodyOff := c.body
		if i == 0 {
			bodyOff += start
			start = 0
		}
		end := len(body)
		if i+1 < len(cuts) {
			end = cuts[i+1].pos
		}

		raw := body[start:end]
		trimmed := strings.TrimRightFunc(raw, unicode.IsSpace)
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if bodyOff > len(trimmed) {
			bodyOff = len(trimmed)
		}
		out = append(out, section{Title: c.title, Text: trimmed, body: bodyOff})
	}
	return out
}

// markdownCuts returns the top-level headings of the shallowest level that
// occurs at least twice.
func markdownCuts(body string) []cut {
	src := []byte(body)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	type heading struct {
		level int
		cut   cut
	}
	var headings []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		start := lineStart(body, seg.Start)
		end := lineEnd(body, h.Lines().At(h.Lines().Len()-1).Stop)
		headings = append(headings, heading{
			level: h.Level,
			cut: cut{
				pos:   start,
				title: strings.TrimSpace(string(seg.Value(src))),
				body:  end - start,
			},
		})
	}

	counts := make(map[int]int)
	for _, h := range headings {
		counts[h.level]++
	}
	for level := 1; level <= 6; level++ {
		if counts[level] < 2 {
			continue
		}
		var cuts []cut
		for _, h := range headings {
			if h.level == level {
				cuts = append(cuts, h.cut)
			}
		}
		return cuts
	}
	return nil
}

// headingLineCuts finds short capitalized lines standing alone between
// paragraphs, such as "INTRODUCTION" or "Getting Started With Go".
func headingLineCuts(body string) []cut {
	var cuts []cut
	prevBlank := true
	pos := 0
	for pos < len(body) {
		end := lineEnd(body, pos)
		line := strings.TrimSpace(body[pos:end])
		next := end
		if next < len(body) {
			next++
		}

		if line != "" && prevBlank && isHeadingLine(line) && hasTextAfter(body, next) {
			cuts = append(cuts, cut{pos: pos, title: line, body: end - pos})
		}
		prevBlank = line == ""
		pos = next
	}
	return cuts
}

func isHeadingLine(line string) bool {
	if n := utf8.RuneCountInString(line); n < 3 || n > maxHeadingLen {
		return false
	}
	if strings.ContainsAny(line[len(line)-1:], ".,;:!?") {
		return false
	}
	first, _ := utf8.DecodeRuneInString(line)
	if !unicode.IsUpper(first) {
		return false
	}

	words := strings.Fields(line)
	if len(words) > maxHeadingWords {
		return false
	}

	letters, upper := 0, 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return false
	}
	if upper == letters && letters >= 3 {
		return true
	}

	// Title case: every significant word is capitalized and there are at
	// least two words.
	if len(words) < 2 {
		return false
	}
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		r, _ := utf8.DecodeRuneInString(w)
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func hasTextAfter(body string, pos int) bool {
	return pos < len(body) && strings.TrimSpace(body[pos:]) != ""
}

// tryDividers splits on triple line breaks and horizontal rules when at
// least two are present.
func tryDividers(body string, out *[]section) bool {
	locs := dividerRe.FindAllStringIndex(body, -1)
	if len(locs) < 2 {
		return false
	}

	var sections []section
	prev := 0
	add := func(start, end int) {
		t := strings.TrimSpace(body[start:end])
		if t == "" {
			return
		}
		sections = append(sections, section{Title: firstLine(t), Text: t})
	}
	for _, loc := range locs {
		add(prev, loc[0])
		prev = loc[1]
	}
	add(prev, len(body))

	if len(sections) < 2 {
		return false
	}
	*out = sections
	return true
}

// partition splits body into equal length parts, between opts.min and
// opts.max of them, moving each cut to the nearest sentence boundary within
// a quarter part of the target.
func partition(body string, opts sectionOptions) []section {
	runes := utf8.RuneCountInString(body)
	count := (runes + opts.partSize - 1) / max(opts.partSize, 1)
	count = max(opts.min, min(count, opts.max))
	if count < 2 {
		count = 2
	}

	// Byte offset of every rune boundary at the ideal cut points.
	targets := make([]int, 0, count-1)
	want := 1
	i := 0
	for pos := range body {
		if want < count && i == want*runes/count {
			targets = append(targets, pos)
			want++
		}
		i++
	}

	var boundaries []int
	for _, loc := range sentenceEndRe.FindAllStringIndex(body, -1) {
		boundaries = append(boundaries, loc[1])
	}

	window := len(body) / count / 4
	cuts := make([]int, 0, len(targets))
	prev := 0
	for _, t := range targets {
		c := nearest(boundaries, t, window)
		if c <= prev || c >= len(body) {
			c = t
		}
		if c <= prev {
			continue
		}
		cuts = append(cuts, c)
		prev = c
	}

	var out []section
	start := 0
	for _, c := range append(cuts, len(body)) {
		t := strings.TrimSpace(body[start:c])
		start = c
		if t == "" {
			continue
		}
		out = append(out, section{Title: "Part " + strconv.Itoa(len(out)+1), Text: t})
	}
	return out
}

// nearest returns the boundary closest to target within window bytes, or
// target itself when none is close enough.
func nearest(boundaries []int, target, window int) int {
	best, bestDist := target, window+1
	for _, b := range boundaries {
		d := b - target
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}

// mergeSections joins neighbouring sections into n groups of near equal
// section count. Each group keeps the title of its first section.
func mergeSections(sections []section, n int) []section {
	out := make([]section, 0, n)
	for g := range n {
		lo := g * len(sections) / n
		hi := (g + 1) * len(sections) / n
		if lo >= hi {
			continue
		}
		merged := sections[lo]
		for _, s := range sections[lo+1 : hi] {
			merged.Text += "\n\n" + s.Text
		}
		out = append(out, merged)
	}
	return out
}

func lineStart(s string, pos int) int {
	if pos > len(s) {
		pos = len(s)
	}
	return strings.LastIndexByte(s[:pos], '\n') + 1
}

func lineEnd(s string, pos int) int {
	if pos >= len(s) {
		return len(s)
	}
	if i := strings.IndexByte(s[pos:], '\n'); i >= 0 {
		return pos + i
	}
	return len(s)
}

func firstLine(s string) string {
	line := s
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		line = s[:i]
	}
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) > maxHeadingLen {
		line = string([]rune(line)[:maxHeadingLen])
	}
	return line
}
