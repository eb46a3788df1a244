// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// MATH RENDERING
// =============================================================================

// MathRenderer turns LaTeX source into displayable text.
type MathRenderer interface {
	Render(tex string, display bool) (string, error)
}

var (
	// ErrUnsupportedMacro is returned for a macro the renderer does not know.
	ErrUnsupportedMacro = errors.New("unsupported macro")

	// ErrUnbalancedBraces is returned when { and } do not pair up.
	ErrUnbalancedBraces = errors.New("unbalanced braces")
)

// symbols shared by both renderers.
var mathSymbols = map[string]string{
	// Greek
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ε",
	"varepsilon": "ε", "zeta": "ζ", "eta": "η", "theta": "θ", "vartheta": "ϑ",
	"iota": "ι", "kappa": "κ", "lambda": "λ", "mu": "μ", "nu": "ν", "xi": "ξ",
	"pi": "π", "rho": "ρ", "sigma": "σ", "tau": "τ", "upsilon": "υ",
	"phi": "φ", "varphi": "φ", "chi": "χ", "psi": "ψ", "omega": "ω",
	"Gamma": "Γ", "Delta": "Δ", "Theta": "Θ", "Lambda": "Λ", "Xi": "Ξ",
	"Pi": "Π", "Sigma": "Σ", "Phi": "Φ", "Psi": "Ψ", "Omega": "Ω",
	// Comparison and relations
	"leq": "≤", "le": "≤", "geq": "≥", "ge": "≥", "neq": "≠", "ne": "≠",
	"approx": "≈", "equiv": "≡", "sim": "∼", "propto": "∝", "ll": "≪", "gg": "≫",
	"in": "∈", "notin": "∉", "subset": "⊂", "subseteq": "⊆", "supset": "⊃",
	"cup": "∪", "cap": "∩", "emptyset": "∅", "forall": "∀", "exists": "∃",
	// Operators
	"times": "×", "cdot": "·", "div": "÷", "pm": "±", "mp": "∓", "ast": "∗",
	"sum": "∑", "prod": "∏", "int": "∫", "oint": "∮", "partial": "∂",
	"nabla": "∇", "infty": "∞", "circ": "∘", "degree": "°",
	"rightarrow": "→", "to": "→", "leftarrow": "←", "Rightarrow": "⇒",
	"Leftarrow": "⇐", "leftrightarrow": "↔", "Leftrightarrow": "⇔",
	"mapsto": "↦", "cdots": "⋯", "ldots": "…", "dots": "…", "prime": "′",
	"neg": "¬", "land": "∧", "lor": "∨", "angle": "∠", "perp": "⊥",
	// Function names
	"sin": "sin", "cos": "cos", "tan": "tan", "cot": "cot", "sec": "sec",
	"csc": "csc", "arcsin": "arcsin", "arccos": "arccos", "arctan": "arctan",
	"sinh": "sinh", "cosh": "cosh", "tanh": "tanh", "log": "log", "ln": "ln",
	"exp": "exp", "lim": "lim", "max": "max", "min": "min", "det": "det",
	"gcd": "gcd", "mod": "mod",
	// Spacing
	",": " ", ";": " ", ":": " ", " ": " ", "quad": "  ", "qquad": "    ",
	"!": "", "{": "{", "}": "}", "%": "%", "$": "$", "_": "_", "&": "&",
}

var superscripts = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴', '5': '⁵', '6': '⁶',
	'7': '⁷', '8': '⁸', '9': '⁹', '+': '⁺', '-': '⁻', '=': '⁼', '(': '⁽',
	')': '⁾', 'n': 'ⁿ', 'i': 'ⁱ', 'x': 'ˣ', 'y': 'ʸ', 'a': 'ᵃ', 'b': 'ᵇ',
	'c': 'ᶜ', 'd': 'ᵈ', 'e': 'ᵉ', 'k': 'ᵏ', 'm': 'ᵐ', 't': 'ᵗ', 'T': 'ᵀ',
}

var subscripts = map[rune]rune{
	'0': '₀', '1': '₁', '2': '₂', '3': '₃', '4': '₄', '5': '₅', '6': '₆',
	'7': '₇', '8': '₈', '9': '₉', '+': '₊', '-': '₋', '=': '₌', '(': '₍',
	')': '₎', 'a': 'ₐ', 'e': 'ₑ', 'i': 'ᵢ', 'j': 'ⱼ', 'k': 'ₖ', 'n': 'ₙ',
	'o': 'ₒ', 'x': 'ₓ', 'm': 'ₘ', 't': 'ₜ',
}

// -----------------------------------------------------------------------------
// Unicode renderer
// -----------------------------------------------------------------------------

// UnicodeRenderer renders a subset of LaTeX to Unicode text. It is strict:
// unknown macros and unbalanced braces are errors, which is what lets the
// Formatter switch to the plain fallback.
type UnicodeRenderer struct{}

// Render implements MathRenderer.
func (UnicodeRenderer) Render(tex string, display bool) (string, error) {
	p := &texParser{src: []rune(tex)}
	out, err := p.parseUntil(0)
	if err != nil {
		return "", err
	}
	if p.pos < len(p.src) {
		return "", fmt.Errorf("%w: stray }", ErrUnbalancedBraces)
	}
	return collapseSpaces(out), nil
}

type texParser struct {
	src []rune
	pos int
}

// parseUntil renders until end of input or, when depth > 0, a closing brace.
func (p *texParser) parseUntil(depth int) (string, error) {
	var b strings.Builder
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		switch r {
		case '}':
			if depth == 0 {
				return "", fmt.Errorf("%w: stray }", ErrUnbalancedBraces)
			}
			p.pos++
			return b.String(), nil
		case '{':
			p.pos++
			inner, err := p.parseUntil(depth + 1)
			if err != nil {
				return "", err
			}
			b.WriteString(inner)
		case '\\':
			s, err := p.macro()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case '^', '_':
			p.pos++
			arg, err := p.argument()
			if err != nil {
				return "", err
			}
			b.WriteString(script(arg, r == '^'))
		default:
			b.WriteRune(r)
			p.pos++
		}
	}
	if depth > 0 {
		return "", fmt.Errorf("%w: missing }", ErrUnbalancedBraces)
	}
	return b.String(), nil
}

// argument reads one token: a braced group, a macro or a single rune.
func (p *texParser) argument() (string, error) {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return "", fmt.Errorf("%w: missing argument", ErrUnbalancedBraces)
	}
	switch p.src[p.pos] {
	case '{':
		p.pos++
		return p.parseUntil(1)
	case '\\':
		return p.macro()
	case '}':
		return "", fmt.Errorf("%w: missing argument", ErrUnbalancedBraces)
	}
	r := p.src[p.pos]
	p.pos++
	return string(r), nil
}

func (p *texParser) macro() (string, error) {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return "", fmt.Errorf("%w: trailing backslash", ErrUnsupportedMacro)
	}
	start := p.pos
	if isLetter(p.src[p.pos]) {
		for p.pos < len(p.src) && isLetter(p.src[p.pos]) {
			p.pos++
		}
	} else {
		p.pos++
	}
	name := string(p.src[start:p.pos])

	switch name {
	case "\\":
		return "\n", nil
	case "frac", "dfrac", "tfrac":
		num, err := p.argument()
		if err != nil {
			return "", err
		}
		den, err := p.argument()
		if err != nil {
			return "", err
		}
		return wrapOperand(num) + "/" + wrapOperand(den), nil
	case "sqrt":
		arg, err := p.argument()
		if err != nil {
			return "", err
		}
		return "√" + wrapOperand(arg), nil
	case "text", "mathrm", "mathbf", "mathit", "textbf", "operatorname", "mathbb", "mathcal":
		return p.argument()
	case "left", "right", "big", "Big", "bigl", "bigr", "displaystyle":
		return "", nil
	case "vec":
		arg, err := p.argument()
		if err != nil {
			return "", err
		}
		return arg + "⃗", nil
	case "hat":
		arg, err := p.argument()
		if err != nil {
			return "", err
		}
		return arg + "̂", nil
	case "bar", "overline":
		arg, err := p.argument()
		if err != nil {
			return "", err
		}
		return arg + "̄", nil
	}
	if s, ok := mathSymbols[name]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: \\%s", ErrUnsupportedMacro, name)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// script renders a super- or subscript, using Unicode forms when every
// rune has one and ^(...) / _(...) otherwise.
func script(arg string, sup bool) string {
	table := subscripts
	marker := "_"
	if sup {
		table = superscripts
		marker = "^"
	}
	var b strings.Builder
	for _, r := range arg {
		m, ok := table[r]
		if !ok {
			if len([]rune(arg)) == 1 {
				return marker + arg
			}
			return marker + "(" + arg + ")"
		}
		b.WriteRune(m)
	}
	return b.String()
}

func wrapOperand(s string) string {
	if len([]rune(s)) <= 1 || !strings.ContainsAny(s, " +-*/·×") {
		return s
	}
	return "(" + s + ")"
}

var spaceRun = regexp.MustCompile(`[ \t]{2,}`)

func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// -----------------------------------------------------------------------------
// Plain fallback
// -----------------------------------------------------------------------------

// PlainRenderer applies a fixed substitution table and never fails. It is
// the fallback once the primary renderer has failed.
type PlainRenderer struct{}

var (
	plainFrac  = regexp.MustCompile(`\\[dt]?frac\s*\{([^{}]*)\}\s*\{([^{}]*)\}`)
	plainSqrt  = regexp.MustCompile(`\\sqrt\s*\{([^{}]*)\}`)
	plainText  = regexp.MustCompile(`\\(?:text|mathrm|mathbf|mathit|operatorname)\s*\{([^{}]*)\}`)
	plainMacro = regexp.MustCompile(`\\([A-Za-z]+)`)
	plainDelim = regexp.MustCompile(`\\(?:left|right)\b`)
)

// Render implements MathRenderer.
func (PlainRenderer) Render(tex string, display bool) (string, error) {
	s := tex
	// Innermost fractions first so simple nesting resolves.
	for i := 0; i < 4 && plainFrac.MatchString(s); i++ {
		s = plainFrac.ReplaceAllString(s, "$1/$2")
	}
	s = plainSqrt.ReplaceAllString(s, "√($1)")
	s = plainText.ReplaceAllString(s, "$1")
	s = plainDelim.ReplaceAllString(s, "")
	s = strings.NewReplacer(`\,`, " ", `\;`, " ", `\\`, "\n").Replace(s)
	s = plainMacro.ReplaceAllStringFunc(s, func(m string) string {
		if sym, ok := mathSymbols[m[1:]]; ok {
			return sym
		}
		return m[1:]
	})
	return collapseSpaces(s), nil
}

// -----------------------------------------------------------------------------
// Fallback latch
// -----------------------------------------------------------------------------

// renderMath renders with the primary renderer until it fails once; from
// then on every call goes to the fallback. The latch never resets.
func (f *Formatter) renderMath(tex string, display bool) (string, bool) {
	if !f.mathFailed.Load() {
		out, err := f.primary.Render(tex, display)
		if err == nil {
			return out, false
		}
		if f.mathFailed.CompareAndSwap(false, true) {
			f.log.Debug("math renderer failed, switching to plain fallback", "error", err)
		}
	}
	out, _ := f.fallback.Render(tex, display)
	return out, true
}

// MathFallbackActive reports whether the plain fallback latch has tripped.
func (f *Formatter) MathFallbackActive() bool {
	return f.mathFailed.Load()
}
