// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// BLOCK SEGMENTATION
// =============================================================================

func kinds(blocks []Block) []Kind {
	out := make([]Kind, len(blocks))
	for i, b := range blocks {
		out[i] = b.Kind()
	}
	return out
}

func TestFormat_Empty(t *testing.T) {
	assert.Empty(t, Format(""))
	assert.Empty(t, Format("\n\n  \n"))
}

func TestFormat_CodeBlockVerbatim(t *testing.T) {
	code := "func main() {\n\n\tfmt.Println(\"**not bold**\")\n\n}"
	blocks := Format("```go\n" + code + "\n```")

	require.Len(t, blocks, 1)
	cb, ok := blocks[0].(*CodeBlock)
	require.True(t, ok)
	assert.Equal(t, "go", cb.Language)
	assert.Equal(t, code, cb.Code)
	assert.True(t, cb.Complete)
}

func TestFormat_UnterminatedCodeBlockIsFlushed(t *testing.T) {
	blocks := Format("Intro\n```python\nprint(1)\nprint(2)")

	require.Len(t, blocks, 2)
	cb, ok := blocks[1].(*CodeBlock)
	require.True(t, ok)
	assert.Equal(t, "print(1)\nprint(2)", cb.Code)
	assert.False(t, cb.Complete)
}

func TestFormat_FenceWithInfoStringDoesNotClose(t *testing.T) {
	blocks := Format("```md\n```go\nx\n```")
	require.Len(t, blocks, 1)
	assert.Equal(t, "```go\nx", blocks[0].(*CodeBlock).Code)
}

func TestFormat_ExplanationGroupedWithCode(t *testing.T) {
	text := "```sh\nls\n```\nThis lists files.\n\nUse **-la** for more.\n| a | b |\n|---|---|\n| 1 | 2 |"
	blocks := Format(text)

	require.Equal(t, []Kind{KindCode, KindTable}, kinds(blocks))
	cb := blocks[0].(*CodeBlock)
	require.Len(t, cb.Explanation, 2)
	assert.Equal(t, "This lists files.\nUse -la for more.", cb.ExplanationText())
	assert.Equal(t, SpanBold, cb.Explanation[1][1].Kind)
}

func TestFormat_DisplayMath(t *testing.T) {
	blocks := Format("$$\nx = 1\n$$")

	require.Len(t, blocks, 1)
	mb, ok := blocks[0].(*MathBlock)
	require.True(t, ok)
	assert.Equal(t, "x = 1", mb.Source)
	assert.Equal(t, "x = 1", mb.Rendered)
	assert.True(t, mb.Complete)
}

func TestFormat_MathDelimiterForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		src  string
	}{
		{"single line dollars", "$$a+b$$", "a+b"},
		{"single line brackets", `\[ a+b \]`, "a+b"},
		{"multi line brackets", "\\[\na+b\n\\]", "a+b"},
		{"content on opener line", "$$ a\n+ b $$", "a\n+ b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := Format(tt.in)
			require.Len(t, blocks, 1)
			assert.Equal(t, tt.src, blocks[0].(*MathBlock).Source)
		})
	}
}

func TestFormat_TextAfterClosingMathDelimiter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		src  string
		tail string
	}{
		{"single line dollars", "$$x$$ is the answer", "x", "is the answer"},
		{"multi line dollars", "$$\nx = 1\n$$ and that's it", "x = 1", "and that's it"},
		{"brackets", `\[a\] then b`, "a", "then b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := Format(tt.in)
			require.Equal(t, []Kind{KindMath, KindParagraph}, kinds(blocks))
			assert.Equal(t, tt.src, blocks[0].(*MathBlock).Source)
			assert.Equal(t, tt.tail, PlainText(blocks[1].(*Paragraph).Spans))
		})
	}
}

func TestFormat_UnterminatedMath(t *testing.T) {
	blocks := Format("$$\n\\alpha + 1")
	require.Len(t, blocks, 1)
	mb := blocks[0].(*MathBlock)
	assert.False(t, mb.Complete)
	assert.Equal(t, "α + 1", mb.Rendered)
}

func TestFormat_Table(t *testing.T) {
	text := "| Name | Score | Rank |\n|------|-------|------|\n| Ann | 10 |\n| Bob | 7 | 2 | extra |\nAfter."
	blocks := Format(text)

	require.Equal(t, []Kind{KindTable, KindParagraph}, kinds(blocks))
	tbl := blocks[0].(*Table)
	assert.Equal(t, []string{"Name", "Score", "Rank"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"Ann", "10"}, tbl.Rows[0])
	assert.Equal(t, []string{"Bob", "7", "2", "extra"}, tbl.Rows[1])
	assert.Equal(t, 4, tbl.Columns())
}

func TestFormat_TableWithoutDataRowIsSuppressed(t *testing.T) {
	blocks := Format("| a | b |\n|---|---|")
	assert.Empty(t, blocks)
}

func TestFormat_TableSeparatorNotValidated(t *testing.T) {
	blocks := Format("| h |\n| not a separator |\n| v |")
	require.Len(t, blocks, 1)
	tbl := blocks[0].(*Table)
	assert.Equal(t, [][]string{{"v"}}, tbl.Rows)
}

func TestFormat_Chart(t *testing.T) {
	blocks := Format("```chart\n{\"type\":\"line\",\"data\":[{\"name\":\"a\",\"v\":1}]}\n```")

	require.Len(t, blocks, 1)
	c, ok := blocks[0].(*Chart)
	require.True(t, ok)
	require.NoError(t, c.Err)
	assert.Equal(t, ChartLine, c.Spec.Type)
	assert.Equal(t, []string{"v"}, c.Spec.Series)
	assert.Equal(t, 1.0, c.Spec.Data[0].Values["v"])
}

func TestFormat_ChartMissingTypeIsErrorBlock(t *testing.T) {
	raw := `{"data":[]}`
	blocks := Format("```chart\n" + raw + "\n```")

	require.Len(t, blocks, 1)
	c := blocks[0].(*Chart)
	assert.Nil(t, c.Spec)
	require.Error(t, c.Err)
	assert.True(t, errors.Is(c.Err, ErrChartInvalid))
	assert.Equal(t, raw, c.Raw)
}

func TestFormat_LinePrecedence(t *testing.T) {
	text := strings.Join([]string{
		"# Title",
		"#### Small",
		"##### Not a heading",
		"- dash",
		"* star",
		"• dot",
		"12. twelve",
		"> quoted",
		"---",
		"plain",
	}, "\n")
	blocks := Format(text)

	require.Equal(t, []Kind{
		KindHeading, KindHeading, KindParagraph,
		KindListItem, KindListItem, KindListItem, KindListItem,
		KindBlockquote, KindHorizontalRule, KindParagraph,
	}, kinds(blocks))

	assert.Equal(t, 1, blocks[0].(*Heading).Level)
	assert.Equal(t, 4, blocks[1].(*Heading).Level)
	ordered := blocks[6].(*ListItem)
	assert.True(t, ordered.Ordered)
	assert.Equal(t, "12", ordered.Marker)
	assert.Equal(t, "quoted", PlainText(blocks[7].(*Blockquote).Spans))
}

func TestFormat_ParagraphLineBreaks(t *testing.T) {
	blocks := Format("one\ntwo\n\nthree\n- item")

	require.Equal(t, []Kind{KindParagraph, KindParagraph, KindParagraph, KindListItem}, kinds(blocks))
	assert.True(t, blocks[0].(*Paragraph).LineBreak)
	assert.False(t, blocks[1].(*Paragraph).LineBreak, "blank line ends the paragraph")
	assert.False(t, blocks[2].(*Paragraph).LineBreak, "list item is not a continuation")
}

func TestFormat_NestedListIndent(t *testing.T) {
	blocks := Format("- top\n    - nested")
	require.Len(t, blocks, 2)
	assert.Equal(t, 0, blocks[0].(*ListItem).Indent)
	assert.Equal(t, 2, blocks[1].(*ListItem).Indent)
}

// =============================================================================
// INLINE FORMATTING
// =============================================================================

func TestParseInline(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		kinds []SpanKind
		texts []string
	}{
		{"plain", "hello", []SpanKind{SpanText}, []string{"hello"}},
		{"bold", "a **b** c", []SpanKind{SpanText, SpanBold, SpanText}, []string{"a ", "b", " c"}},
		{"code", "run `go test`", []SpanKind{SpanText, SpanCode}, []string{"run ", "go test"}},
		{"math", "area $r^2$ here", []SpanKind{SpanText, SpanMath, SpanText}, []string{"area ", "r^2", " here"}},
		{"code hides bold", "`**x**`", []SpanKind{SpanCode}, []string{"**x**"}},
		{"math hides code", "$`a`$", []SpanKind{SpanMath}, []string{"`a`"}},
		{"unmatched bold", "a **b", []SpanKind{SpanText}, []string{"a **b"}},
		{"unmatched dollar", "costs $5", []SpanKind{SpanText}, []string{"costs $5"}},
		{"display dollars untouched", "$$x$$", []SpanKind{SpanText}, []string{"$$x$$"}},
		{"triple backtick untouched", "```x```", []SpanKind{SpanText}, []string{"```x```"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := ParseInline(tt.in, nil)
			require.Len(t, spans, len(tt.kinds))
			for i, s := range spans {
				assert.Equal(t, tt.kinds[i], s.Kind, "span %d kind", i)
				assert.Equal(t, tt.texts[i], s.Text, "span %d text", i)
			}
		})
	}
}

func TestInlineMathIsRendered(t *testing.T) {
	spans := New().Inline(`where $\alpha^2$ grows`)
	require.Len(t, spans, 3)
	assert.Equal(t, "α²", spans[1].Rendered)
	assert.Equal(t, "where α² grows", PlainText(spans))
}

// =============================================================================
// MATH RENDERING
// =============================================================================

func TestUnicodeRenderer(t *testing.T) {
	r := UnicodeRenderer{}
	tests := map[string]string{
		`x^2 + y_1`:          "x² + y₁",
		`\frac{a}{b}`:        "a/b",
		`\frac{x+1}{2}`:      "(x+1)/2",
		`\sqrt{2}`:           "√2",
		`a \leq b \neq c`:    "a ≤ b ≠ c",
		`\sin \theta`:        "sin θ",
		`\text{speed} = v`:   "speed = v",
		`e^{i\pi}`:           "e^(iπ)",
		`\left( x \right)`:   "( x )",
		`\sum_{i=1}^{n} i`:   "∑ᵢ₌₁ⁿ i",
	}
	for in, want := range tests {
		got, err := r.Render(in, false)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got, in)
		}
	}
}

func TestUnicodeRendererFailures(t *testing.T) {
	r := UnicodeRenderer{}
	_, err := r.Render(`\unknownmacro x`, true)
	assert.True(t, errors.Is(err, ErrUnsupportedMacro))

	_, err = r.Render(`{x`, true)
	assert.True(t, errors.Is(err, ErrUnbalancedBraces))

	_, err = r.Render(`x}`, true)
	assert.True(t, errors.Is(err, ErrUnbalancedBraces))
}

func TestPlainRenderer(t *testing.T) {
	r := PlainRenderer{}
	tests := map[string]string{
		`\frac{a}{b}`:          "a/b",
		`\sin x`:               "sin x",
		`\alpha \leq \beta`:    "α ≤ β",
		`\mystery{x}`:          "mystery{x}",
		`\left( a \right)`:     "( a )",
		`a \leftarrow b`:       "a ← b",
	}
	for in, want := range tests {
		got, err := r.Render(in, true)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

type failingRenderer struct{ calls int }

func (f *failingRenderer) Render(string, bool) (string, error) {
	f.calls++
	return "", ErrUnsupportedMacro
}

func TestMathFallbackLatch(t *testing.T) {
	primary := &failingRenderer{}
	f := New(WithMathRenderer(primary))
	assert.False(t, f.MathFallbackActive())

	first := f.Format(`$$\frac{1}{2}$$`)
	mb := first[0].(*MathBlock)
	assert.True(t, mb.Fallback)
	assert.Equal(t, "1/2", mb.Rendered)
	assert.True(t, f.MathFallbackActive())

	// Later math skips the primary renderer entirely.
	f.Format("$$x$$ and more\n$y$ inline")
	assert.Equal(t, 1, primary.calls)
}

func TestMathFallbackLatchIsPerFormatter(t *testing.T) {
	f := New()
	f.Format(`$$\notarealmacro$$`)
	assert.True(t, f.MathFallbackActive())

	g := New()
	blocks := g.Format(`$$\alpha$$`)
	assert.False(t, blocks[0].(*MathBlock).Fallback)
}

// =============================================================================
// CHARTS
// =============================================================================

func TestParseChart(t *testing.T) {
	spec, err := ParseChart(`{"type":"bar","title":"Sales","data":[{"name":"Q1","north":3,"south":"4.5"},{"name":"Q2","north":5,"south":1}]}`)
	require.NoError(t, err)
	assert.Equal(t, ChartBar, spec.Type)
	assert.Equal(t, "Sales", spec.Title)
	assert.Equal(t, []string{"north", "south"}, spec.Series)
	assert.Equal(t, 4.5, spec.Data[0].Values["south"])
	assert.Equal(t, "Q2", spec.Data[1].Name)
	assert.Equal(t, 5.0, spec.Max())
}

func TestParseChartErrors(t *testing.T) {
	tests := []string{
		``,
		`{not json`,
		`[1,2]`,
		`{"data":[{"v":1}]}`,
		`{"type":"radar","data":[{"v":1}]}`,
		`{"type":"pie"}`,
		`{"type":"pie","data":[]}`,
		`{"type":"pie","data":[1]}`,
	}
	for _, raw := range tests {
		_, err := ParseChart(raw)
		assert.ErrorIs(t, err, ErrChartInvalid, raw)
	}
}
