package prompt

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pkrishnath/AI-Trader/internal/ledger"
)

func TestToonLayout(t *testing.T) {
	got := Toon("positions", []string{"symbol", "amount"}, []Row{
		{"AAPL", "10"},
		{"CASH", "9000"},
	})
	want := "positions[2] {symbol,amount}\n  AAPL 10\n  CASH 9000\n"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestToonEmpty(t *testing.T) {
	got := Toon("rows", []string{"a", "b"}, nil)
	if got != "rows[0] {a,b}\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSystemPromptContents(t *testing.T) {
	snap := &ledger.Snapshot{
		Date: "2025-10-13",
		Positions: map[string]decimal.Decimal{
			"AAPL":            decimal.NewFromInt(10),
			"MSFT":            decimal.Zero,
			ledger.CashSymbol: decimal.NewFromInt(9000),
		},
	}
	prices := map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("255.40"),
		"MSFT": decimal.RequireFromString("511.00"),
	}

	got := System("2025-10-13", snap, prices)

	for _, want := range []string{
		"**Today's Date:** 2025-10-13",
		"positions[2] {symbol,amount}",
		"  AAPL 10",
		"  CASH 9000",
		"open_prices[2] {symbol,open}",
		"  AAPL 255.4",
		"  MSFT 511",
		StopSignal,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "MSFT 0\n") {
		t.Fatal("zero holding should be omitted from positions")
	}
}

func TestUserQuery(t *testing.T) {
	got := UserQuery("2025-10-13")
	if got != "Please analyze and update today's (2025-10-13) positions." {
		t.Fatalf("got %q", got)
	}
}

func TestNudgeMentionsStopSignal(t *testing.T) {
	if !strings.Contains(Nudge(), StopSignal) {
		t.Fatal("nudge should restate the completion marker")
	}
}
