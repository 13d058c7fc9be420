package highlight

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// Snippet extracts a window of text around the best span, bounded by the
// configured snippet length, with ellipses marking truncation.
func (h *Highlighter) Snippet(text string, spans []Span) string {
	start, end := h.snippetWindow(text, spans)
	out := text[start:end]
	if start > 0 {
		out = ellipsis + out
	}
	if end < len(text) {
		out += ellipsis
	}
	return out
}

// Render wraps every span of text in the configured highlight tag. Spans
// must not overlap; overlapping spans after the first are skipped.
func (h *Highlighter) Render(text string, spans []Span) string {
	if len(spans) == 0 {
		return text
	}
	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var b strings.Builder
	last := 0
	for _, s := range ordered {
		if s.Start < last || s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		b.WriteString(text[last:s.Start])
		b.WriteString("<")
		b.WriteString(h.tag)
		b.WriteString(">")
		b.WriteString(text[s.Start:s.End])
		b.WriteString("</")
		b.WriteString(h.tag)
		b.WriteString(">")
		last = s.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// RenderSnippet combines Snippet and Render: it extracts the window around
// the best span and tags the spans that fall fully inside it.
func (h *Highlighter) RenderSnippet(text string, spans []Span) string {
	start, end := h.snippetWindow(text, spans)
	return h.renderWindow(text, spans, start, end)
}

// RenderSnippets renders up to the configured number of highlighted
// windows. A single snippet centers on the best span; with more allowed,
// spans cluster into windows and the densest clusters win.
func (h *Highlighter) RenderSnippets(text string, spans []Span) []string {
	windows := h.snippetWindows(text, spans)
	out := make([]string, 0, len(windows))
	for _, w := range windows {
		out = append(out, h.renderWindow(text, spans, w[0], w[1]))
	}
	return out
}

// renderWindow tags the spans falling fully inside [start, end) and marks
// truncation with ellipses.
func (h *Highlighter) renderWindow(text string, spans []Span, start, end int) string {
	window := text[start:end]

	inside := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Start >= start && s.End <= end {
			inside = append(inside, Span{
				Text:  s.Text,
				Start: s.Start - start,
				End:   s.End - start,
				Score: s.Score,
			})
		}
	}

	out := h.Render(window, inside)
	if start > 0 {
		out = ellipsis + out
	}
	if end < len(text) {
		out += ellipsis
	}
	return out
}

// snippetWindows picks up to maxSnippets non-overlapping windows. Spans
// whose extent fits one window length cluster together; clusters rank by
// the sum of their span scores, and the chosen windows come back in
// document order with any overlap between neighbors trimmed.
func (h *Highlighter) snippetWindows(text string, spans []Span) [][2]int {
	if h.maxSnippets <= 1 || len(text) <= h.snippetLength || len(spans) == 0 {
		start, end := h.snippetWindow(text, spans)
		return [][2]int{{start, end}}
	}

	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	type cluster struct {
		start, end int
		score      float64
	}
	clusters := []cluster{{start: ordered[0].Start, end: ordered[0].End, score: ordered[0].Score}}
	for _, s := range ordered[1:] {
		cur := &clusters[len(clusters)-1]
		if s.End-cur.start <= h.snippetLength {
			if s.End > cur.end {
				cur.end = s.End
			}
			cur.score += s.Score
			continue
		}
		clusters = append(clusters, cluster{start: s.Start, end: s.End, score: s.Score})
	}

	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].score > clusters[j].score })
	if len(clusters) > h.maxSnippets {
		clusters = clusters[:h.maxSnippets]
	}

	windows := make([][2]int, 0, len(clusters))
	for _, c := range clusters {
		mid := (c.start + c.end) / 2
		start := mid - h.snippetLength/2
		if start < 0 {
			start = 0
		}
		end := start + h.snippetLength
		if end > len(text) {
			end = len(text)
			if start = end - h.snippetLength; start < 0 {
				start = 0
			}
		}
		windows = append(windows, [2]int{snapStart(text, start), snapEnd(text, end)})
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i][0] < windows[j][0] })

	kept := windows[:0]
	lastEnd := 0
	for _, w := range windows {
		if w[0] < lastEnd {
			w[0] = snapStart(text, lastEnd)
		}
		if w[1] <= w[0] {
			continue
		}
		kept = append(kept, w)
		lastEnd = w[1]
	}
	return kept
}

// snippetWindow picks the single [start, end) byte window of text to
// display: centered on the highest scoring span, shifted left when it would
// run past the end, and snapped to rune boundaries.
func (h *Highlighter) snippetWindow(text string, spans []Span) (int, int) {
	length := h.snippetLength
	if len(text) <= length {
		return 0, len(text)
	}
	if len(spans) == 0 {
		return 0, snapEnd(text, length)
	}

	best := spans[0]
	for _, s := range spans[1:] {
		if s.Score > best.Score {
			best = s
		}
	}

	start := best.Start - length/2
	if start < 0 {
		start = 0
	}
	end := start + length
	if end > len(text) {
		end = len(text)
	}
	if end == len(text) && end-start < length {
		start = end - length
		if start < 0 {
			start = 0
		}
	}
	return snapStart(text, start), snapEnd(text, end)
}

// snapStart moves pos forward to the nearest rune start.
func snapStart(text string, pos int) int {
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}

// snapEnd moves pos back to the nearest rune start so the window never cuts
// a rune in half.
func snapEnd(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}
