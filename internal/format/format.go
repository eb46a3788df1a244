// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/orphion/orphion/internal/logging"
)

// =============================================================================
// FORMATTER
// =============================================================================

// Formatter segments AI responses into blocks. It is safe for concurrent
// use. The only state it carries is the math fallback latch, so one
// Formatter should live as long as the view that renders with it.
type Formatter struct {
	primary    MathRenderer
	fallback   MathRenderer
	mathFailed atomic.Bool
	log        *logging.Logger
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithMathRenderer replaces the primary math renderer.
func WithMathRenderer(r MathRenderer) Option {
	return func(f *Formatter) { f.primary = r }
}

// WithLogger sets the logger used for fallback notices.
func WithLogger(l *logging.Logger) Option {
	return func(f *Formatter) { f.log = l }
}

// New creates a Formatter with the Unicode math renderer and the plain
// substitution fallback.
func New(opts ...Option) *Formatter {
	f := &Formatter{
		primary:  UnicodeRenderer{},
		fallback: PlainRenderer{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.OrNop()
	return f
}

// Format segments text using a fresh Formatter.
func Format(text string) []Block {
	return New().Format(text)
}

// Format segments text into blocks in a single forward pass. Input that
// is still streaming is fine: unterminated blocks are flushed as
// incomplete rather than dropped.
func (f *Formatter) Format(text string) []Block {
	s := &segmenter{f: f, lines: splitLines(text)}
	s.run()
	return s.blocks
}

// Inline parses inline formatting with this Formatter's math renderer.
func (f *Formatter) Inline(text string) []Span {
	return ParseInline(text, f.inlineMath)
}

func (f *Formatter) inlineMath(tex string) (string, bool) {
	return f.renderMath(tex, false)
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// =============================================================================
// SEGMENTER
// =============================================================================

type segState int

const (
	stateNone segState = iota
	stateCode
	stateChart
	stateMath
	stateTable
	stateExplain
)

type openerKind int

const (
	openNone openerKind = iota
	openChart
	openCode
	openTable
	openMath
)

var (
	headingRe = regexp.MustCompile(`^(#{1,4}) (.*)$`)
	orderedRe = regexp.MustCompile(`^(\d+)\.\s+(.*)$`)
	ruleRe    = regexp.MustCompile(`^-{3,}$`)
)

type segmenter struct {
	f      *Formatter
	lines  []string
	blocks []Block

	state     segState
	buf       []string
	lang      string
	mathClose string
	rows      [][]string
	lastCode  *CodeBlock
}

func (s *segmenter) run() {
	for i := 0; i < len(s.lines); i++ {
		line := s.lines[i]
		switch s.state {
		case stateCode, stateChart:
			if isClosingFence(line) {
				s.closeFence(true)
				continue
			}
			s.buf = append(s.buf, line)
		case stateMath:
			if idx := strings.Index(line, s.mathClose); idx >= 0 {
				if before := line[:idx]; strings.TrimSpace(before) != "" {
					s.buf = append(s.buf, before)
				}
				s.closeMath(true)
				s.trailing(i, line[idx+len(s.mathClose):])
				continue
			}
			s.buf = append(s.buf, line)
		case stateTable:
			trimmed := strings.TrimSpace(line)
			if isTableRow(trimmed) {
				s.rows = append(s.rows, splitTableRow(trimmed))
				continue
			}
			s.closeTable()
			i-- // reclassify outside the table
		case stateExplain:
			if kind, _ := opener(line); kind != openNone {
				s.state = stateNone
				s.open(i)
				continue
			}
			if strings.TrimSpace(line) != "" {
				s.lastCode.Explanation = append(s.lastCode.Explanation, s.f.Inline(strings.TrimSpace(line)))
			}
		default:
			if s.open(i) {
				continue
			}
			s.classify(i)
		}
	}
	s.flush()
}

// opener classifies a line as a block opener, in priority order.
func opener(line string) (openerKind, string) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "```") {
		lang := strings.TrimSpace(strings.TrimLeft(trimmed, "`"))
		if strings.EqualFold(lang, "chart") {
			return openChart, ""
		}
		return openCode, lang
	}
	if isTableRow(trimmed) {
		return openTable, ""
	}
	if strings.HasPrefix(trimmed, "$$") {
		return openMath, "$$"
	}
	if strings.HasPrefix(trimmed, `\[`) {
		return openMath, `\]`
	}
	return openNone, ""
}

// isClosingFence reports whether line is a bare run of backticks.
func isClosingFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```") && strings.TrimLeft(trimmed, "`") == ""
}

// open starts a block if line i is an opener. It reports whether it did.
func (s *segmenter) open(i int) bool {
	line := s.lines[i]
	kind, arg := opener(line)
	trimmed := strings.TrimSpace(line)
	switch kind {
	case openChart:
		s.state, s.buf = stateChart, nil
	case openCode:
		s.state, s.buf, s.lang = stateCode, nil, arg
	case openTable:
		s.state = stateTable
		s.rows = [][]string{splitTableRow(trimmed)}
	case openMath:
		rest := trimmed[2:]
		if idx := strings.Index(rest, arg); idx >= 0 {
			s.buf = []string{rest[:idx]}
			s.closeMath(true)
			s.trailing(i, rest[idx+len(arg):])
			return true
		}
		s.state, s.mathClose, s.buf = stateMath, arg, nil
		if strings.TrimSpace(rest) != "" {
			s.buf = append(s.buf, rest)
		}
	default:
		return false
	}
	return true
}

func (s *segmenter) closeFence(complete bool) {
	body := strings.Join(s.buf, "\n")
	if s.state == stateChart {
		c := &Chart{Raw: body, Complete: complete}
		c.Spec, c.Err = ParseChart(body)
		s.blocks = append(s.blocks, c)
		s.state, s.buf = stateNone, nil
		return
	}
	cb := &CodeBlock{Language: s.lang, Code: body, Complete: complete}
	s.blocks = append(s.blocks, cb)
	s.buf, s.lang = nil, ""
	s.state = stateNone
	if complete {
		s.lastCode = cb
		s.state = stateExplain
	}
}

func (s *segmenter) closeMath(complete bool) {
	src := strings.TrimSpace(strings.Join(s.buf, "\n"))
	rendered, fallback := s.f.renderMath(src, true)
	s.blocks = append(s.blocks, &MathBlock{
		Source:   src,
		Rendered: rendered,
		Fallback: fallback,
		Complete: complete,
	})
	s.state, s.buf, s.mathClose = stateNone, nil, ""
}

func (s *segmenter) closeTable() {
	if t := buildTable(s.rows); t != nil {
		s.blocks = append(s.blocks, t)
	}
	s.state, s.rows = stateNone, nil
}

// trailing emits text following a closing math delimiter on line i as a
// paragraph.
func (s *segmenter) trailing(i int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.blocks = append(s.blocks, &Paragraph{
		Spans:     s.f.Inline(text),
		LineBreak: i+1 < len(s.lines) && isParagraphLine(s.lines[i+1]),
	})
}

// flush emits whatever block is still open at end of input.
func (s *segmenter) flush() {
	switch s.state {
	case stateCode, stateChart:
		s.closeFence(false)
	case stateMath:
		s.closeMath(false)
	case stateTable:
		s.closeTable()
	}
	s.state = stateNone
}

// classify handles a line outside any block.
func (s *segmenter) classify(i int) {
	line := s.lines[i]
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	if m := headingRe.FindStringSubmatch(trimmed); m != nil {
		s.blocks = append(s.blocks, &Heading{Level: len(m[1]), Spans: s.f.Inline(strings.TrimSpace(m[2]))})
		return
	}
	for _, bullet := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(trimmed, bullet) {
			s.blocks = append(s.blocks, &ListItem{
				Marker: strings.TrimSpace(bullet),
				Indent: indentLevel(line),
				Spans:  s.f.Inline(strings.TrimSpace(trimmed[len(bullet):])),
			})
			return
		}
	}
	if m := orderedRe.FindStringSubmatch(trimmed); m != nil {
		s.blocks = append(s.blocks, &ListItem{
			Ordered: true,
			Marker:  m[1],
			Indent:  indentLevel(line),
			Spans:   s.f.Inline(strings.TrimSpace(m[2])),
		})
		return
	}
	if strings.HasPrefix(trimmed, "> ") {
		s.blocks = append(s.blocks, &Blockquote{Spans: s.f.Inline(strings.TrimSpace(trimmed[2:]))})
		return
	}
	if ruleRe.MatchString(trimmed) {
		s.blocks = append(s.blocks, &HorizontalRule{})
		return
	}

	s.blocks = append(s.blocks, &Paragraph{
		Spans:     s.f.Inline(trimmed),
		LineBreak: i+1 < len(s.lines) && isParagraphLine(s.lines[i+1]),
	})
}

// isParagraphLine reports whether line would be classified as plain text.
func isParagraphLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if kind, _ := opener(line); kind != openNone {
		return false
	}
	if headingRe.MatchString(trimmed) || orderedRe.MatchString(trimmed) || ruleRe.MatchString(trimmed) {
		return false
	}
	for _, p := range []string{"- ", "* ", "• ", "> "} {
		if strings.HasPrefix(trimmed, p) {
			return false
		}
	}
	return true
}

func indentLevel(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n / 2
		}
	}
	return n / 2
}
