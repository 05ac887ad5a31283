package tokenbudget

import (
	"strings"
	"testing"
)

func TestEstimateTokensEmpty(t *testing.T) {
	if got := EstimateTokens("", ""); got != 0 {
		t.Errorf("empty = %d", got)
	}
}

func TestEstimateTokensProse(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)
	got := EstimateTokens(text, "")
	// ~900 chars of prose lands in the low hundreds; the estimator only
	// needs to be the right order of magnitude.
	if got < 100 || got > 400 {
		t.Errorf("prose estimate = %d", got)
	}
}

func TestEstimateTokensCodeFactor(t *testing.T) {
	prose := strings.Repeat("plain words without operators here ", 30)
	code := strings.Repeat("x := map[string]int{\"k\": (a + b) * c}; // calc\n", 30)
	proseEst := EstimateTokens(prose, "")
	codeEst := EstimateTokens(code, "")
	if codeEst <= proseEst/2 {
		t.Errorf("code-dense text should not estimate drastically lower: code=%d prose=%d", codeEst, proseEst)
	}
}

func TestTiktokenOverrideWhenModelKnown(t *testing.T) {
	got := EstimateTokens("hello world", "gpt-4o-mini")
	if got <= 0 || got > 10 {
		t.Errorf("tokenizer estimate = %d", got)
	}
}

func TestThresholdsSingleEventPerTurn(t *testing.T) {
	b := New(1000)
	b.Add(User, 750)

	e := b.CheckThresholds()
	if e == nil || e.Threshold != "warn" {
		t.Fatalf("event = %+v", e)
	}
	if e2 := b.CheckThresholds(); e2 != nil {
		t.Fatalf("warn fired twice in one turn: %+v", e2)
	}

	// Crossing the next threshold still fires once.
	b.Add(Assistant, 100)
	e = b.CheckThresholds()
	if e == nil || e.Threshold != "compact" {
		t.Fatalf("event = %+v", e)
	}

	// New turn re-arms the thresholds.
	b.StartTurn()
	e = b.CheckThresholds()
	if e == nil || e.Threshold != "compact" {
		t.Fatalf("after StartTurn event = %+v", e)
	}
}

func TestResetThresholdWinsOverLower(t *testing.T) {
	b := New(1000)
	b.Add(ToolResult, 950)
	e := b.CheckThresholds()
	if e == nil || e.Threshold != "reset" {
		t.Fatalf("event = %+v", e)
	}
}

func TestCompactDecreasesUsed(t *testing.T) {
	b := New(1000)
	b.Add(User, 300)
	b.Add(Assistant, 400)
	before := b.Used()

	b.Compact(map[Component]int{System: 50, User: 100})
	if b.Used() >= before {
		t.Errorf("compaction must strictly decrease used: %d -> %d", before, b.Used())
	}
}

func TestTruncateUnderBudgetUntouched(t *testing.T) {
	out, truncated := Truncate("short text", 1000, "")
	if truncated || out != "short text" {
		t.Errorf("got %q truncated=%v", out, truncated)
	}
}

func TestTruncateHeadTail(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 2000; i++ {
		sb.WriteString("line with a reasonable amount of content on it\n")
	}
	text := sb.String()

	budget := 500
	out, truncated := Truncate(text, budget, "")
	if !truncated {
		t.Fatal("large text must be truncated")
	}
	if !strings.Contains(out, "lines omitted") {
		t.Error("truncation marker missing")
	}
	if got := EstimateTokens(out, ""); got > budget {
		t.Errorf("truncated output estimates %d tokens, budget %d", got, budget)
	}
	// Head and tail both survive.
	if !strings.HasPrefix(out, "line with") {
		t.Error("head missing")
	}
	if !strings.HasSuffix(strings.TrimRight(out, "\n"), "on it") {
		t.Error("tail missing")
	}
}

func TestTruncateSingleLongLineStaysInBudget(t *testing.T) {
	// One enormous line (minified blob shape) exercises the byte-offset
	// fallback; the result must still estimate within the budget.
	text := strings.Repeat("{\"k\":[1,2,3],\"v\":\"abcdef\"},", 20000)

	for _, budget := range []int{50, 500, 5000} {
		out, truncated := Truncate(text, budget, "")
		if !truncated {
			t.Fatalf("budget %d: oversized single line must be truncated", budget)
		}
		if got := EstimateTokens(out, ""); got > budget {
			t.Errorf("budget %d: truncated output estimates %d tokens", budget, got)
		}
		if !strings.Contains(out, "omitted") {
			t.Errorf("budget %d: truncation marker missing", budget)
		}
	}
}

func TestLegacyMaxLinesMapping(t *testing.T) {
	tokens, deprecated := MaxTokensFromLegacyLines(100)
	if !deprecated {
		t.Fatal("legacy parameter use must be reported")
	}
	if tokens != 100*LegacyLinesToTokensRatio {
		t.Errorf("mapped tokens = %d", tokens)
	}
	if _, deprecated := MaxTokensFromLegacyLines(0); deprecated {
		t.Error("zero max_lines is not a legacy use")
	}
}

func TestMedianOf3(t *testing.T) {
	cases := [][4]int{
		{1, 2, 3, 2},
		{3, 1, 2, 2},
		{5, 5, 1, 5},
	}
	for _, c := range cases {
		if got := medianOf3([]int{c[0], c[1], c[2]}); got != c[3] {
			t.Errorf("median(%d,%d,%d) = %d, want %d", c[0], c[1], c[2], got, c[3])
		}
	}
}
