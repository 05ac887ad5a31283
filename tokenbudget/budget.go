// Package tokenbudget implements the token budget manager: per-component
// token accounting, threshold events, and head+tail tool-output truncation.
package tokenbudget

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Component categorizes tracked token usage.
type Component string

const (
	System     Component = "system"
	User       Component = "user"
	Assistant  Component = "assistant"
	ToolResult Component = "tool_result"
	Scratch    Component = "scratch"
)

// Thresholds are fractions of the total context window.
type Thresholds struct {
	WarnAt    float64
	CompactAt float64
	ResetAt   float64
}

// DefaultThresholds returns the standard defaults: 0.70 / 0.80 / 0.90.
func DefaultThresholds() Thresholds {
	return Thresholds{WarnAt: 0.70, CompactAt: 0.80, ResetAt: 0.90}
}

// Event is emitted at most once per turn when a threshold is crossed,
// satisfying "crossing a threshold emits a single event per turn."
type Event struct {
	Threshold string // "warn", "compact", "reset"
	Used      int
	Total     int
}

// Budget tracks cumulative usage per component against a context window
// and raises threshold Events. It is reset by compaction (used decreases)
// and is otherwise monotone non-decreasing within a turn.
type Budget struct {
	ContextWindowTotal int
	PerComponent       map[Component]int
	Thresholds         Thresholds

	firedThisTurn map[string]bool
}

// New creates a Budget for the given context window.
func New(contextWindowTotal int) *Budget {
	return &Budget{
		ContextWindowTotal: contextWindowTotal,
		PerComponent:       make(map[Component]int),
		Thresholds:         DefaultThresholds(),
		firedThisTurn:      make(map[string]bool),
	}
}

// Add accounts n tokens under component. It never decreases used — only
// Compact (caller-driven) does that.
func (b *Budget) Add(c Component, n int) {
	b.PerComponent[c] += n
}

// Used returns the total accounted tokens across all components.
func (b *Budget) Used() int {
	total := 0
	for _, n := range b.PerComponent {
		total += n
	}
	return total
}

// StartTurn clears the per-turn "already fired" bookkeeping so each
// threshold can fire again on a later turn.
func (b *Budget) StartTurn() {
	b.firedThisTurn = make(map[string]bool)
}

// CheckThresholds returns the highest threshold newly crossed this turn, if
// any. Thresholds are monotone: reset implies compact implies warn, but only
// the single highest one is reported since the turn loop only needs to
// react to the most severe crossing.
func (b *Budget) CheckThresholds() *Event {
	if b.ContextWindowTotal <= 0 {
		return nil
	}
	used := b.Used()
	frac := float64(used) / float64(b.ContextWindowTotal)

	check := func(name string, at float64) *Event {
		if frac >= at && !b.firedThisTurn[name] {
			b.firedThisTurn[name] = true
			return &Event{Threshold: name, Used: used, Total: b.ContextWindowTotal}
		}
		return nil
	}

	if e := check("reset", b.Thresholds.ResetAt); e != nil {
		return e
	}
	if e := check("compact", b.Thresholds.CompactAt); e != nil {
		return e
	}
	return check("warn", b.Thresholds.WarnAt)
}

// Compact replaces the per-component counts after a compaction pass. Used
// strictly decreases; within a turn it otherwise only grows.
func (b *Budget) Compact(newPerComponent map[Component]int) {
	b.PerComponent = newPerComponent
}

// codeDensityChars are the punctuation/operator characters treated as
// evidence of code content.
const codeDensityChars = "[](){}=>+-*/:;,."

// EstimateTokens estimates the token count of text. When tiktoken
// recognizes the model, its encoding is the authority; otherwise the
// median-of-three heuristic applies.
func EstimateTokens(text string, model string) int {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			tokens := enc.Encode(text, nil, nil)
			return len(tokens)
		}
	}
	return heuristicEstimate(text)
}

// heuristicEstimate takes the median of three estimates — chars/3.5, a
// word-based estimate adjusted for long-word runs, and a structured-line
// estimate — with a code-content multiplier.
func heuristicEstimate(text string) int {
	if text == "" {
		return 0
	}

	charEstimate := ceilDiv(len(text), 3.5)

	words := strings.Fields(text)
	wordEstimate := len(words)
	longWordRuns := 0
	for _, w := range words {
		if len(w) > 12 {
			longWordRuns++
		}
	}
	wordEstimate = max(wordEstimate, charEstimate) + longWordRuns

	lines := strings.Split(text, "\n")
	nonEmpty, empty := 0, 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			empty++
		} else {
			nonEmpty++
		}
	}
	lineEstimate := nonEmpty*8 + empty

	estimates := []int{charEstimate, wordEstimate, lineEstimate}
	median := medianOf3(estimates)

	if isCodeLike(text) {
		median = int(float64(median) * 1.15)
	}
	if median < 1 {
		median = 1
	}
	return median
}

func isCodeLike(text string) bool {
	total := 0
	punct := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if strings.ContainsRune(codeDensityChars, r) {
			punct++
		}
	}
	if total == 0 {
		return false
	}
	return float64(punct)/float64(total) > 0.08
}

func ceilDiv(n int, d float64) int {
	q := int(float64(n) / d)
	if float64(q)*d < float64(n) {
		q++
	}
	return q
}

func medianOf3(v []int) int {
	a, b, c := v[0], v[1], v[2]
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// truncationMarkerFmt documents an omitted span, carrying the omitted-line
// count.
const truncationMarkerFmt = "\n...[%d lines omitted]...\n"

// DefaultToolResponseBudget is the default fixed token budget for tool
// output destined for the model.
const DefaultToolResponseBudget = 25000

// LegacyLinesToTokensRatio maps the deprecated max_lines parameter to an
// equivalent token budget. Typical source lines run ~8-12 tokens; 10 is
// the documented default.
const LegacyLinesToTokensRatio = 10

// Truncate bounds text to maxTokens using a head+tail strategy:
// approximately 50% from the beginning, 50% from the end, separated by an
// explicit marker carrying the omitted-line count. model is passed through
// to EstimateTokens for the tokenizer-override path.
func Truncate(text string, maxTokens int, model string) (out string, truncated bool) {
	if EstimateTokens(text, model) <= maxTokens {
		return text, false
	}

	lines := strings.Split(text, "\n")
	if len(lines) <= 2 {
		// Nothing to split on lines; fall back to a byte-offset split,
		// shrinking until the candidate's estimate fits the budget.
		half := maxTokens * 2 // first guess at ~4 chars per token, halved
		if half*2 >= len(text) {
			half = len(text)/2 - 1
		}
		for half >= 1 {
			candidate := text[:half] + fmt.Sprintf(truncationMarkerFmt, 0) + text[len(text)-half:]
			if EstimateTokens(candidate, model) <= maxTokens {
				return candidate, true
			}
			next := half * 3 / 4
			if next == half {
				next = half - 1
			}
			half = next
		}
		return fmt.Sprintf(truncationMarkerFmt, len(lines)), true
	}

	// First guess keeps lines proportional to the budget, then shrinks
	// geometrically until the candidate fits.
	total := EstimateTokens(text, model)
	keep := int(float64(len(lines)) * float64(maxTokens) / float64(total))
	if keep < 2 {
		keep = 2
	}
	for keep >= 2 {
		headLines := keep / 2
		tailLines := keep - headLines
		head := strings.Join(lines[:headLines], "\n")
		tail := strings.Join(lines[len(lines)-tailLines:], "\n")
		omittedCount := len(lines) - headLines - tailLines
		candidate := head + fmt.Sprintf(truncationMarkerFmt, omittedCount) + tail
		if EstimateTokens(candidate, model) <= maxTokens {
			return candidate, true
		}
		next := keep * 3 / 4
		if next == keep {
			next = keep - 1
		}
		keep = next
	}

	return lines[0] + fmt.Sprintf(truncationMarkerFmt, len(lines)-1), true
}

// MaxTokensFromLegacyLines maps a legacy max_lines override to a token
// budget. The returned bool reports that the deprecated parameter was used
// so callers can log it.
func MaxTokensFromLegacyLines(maxLines int) (maxTokens int, deprecated bool) {
	if maxLines <= 0 {
		return 0, false
	}
	return maxLines * LegacyLinesToTokensRatio, true
}
