package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pkrishnath/AI-Trader/internal/ledger"
	"github.com/pkrishnath/AI-Trader/internal/scheduler"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(1, 2)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func DisplayBanner() {
	fmt.Println(titleStyle.Render("AI-Trader — autonomous LLM trading simulator"))
	fmt.Println(mutedStyle.Render("Each model manages its own portfolio, one trading day at a time."))
	fmt.Println()
}

func DisplayError(err error) {
	fmt.Println(errorStyle.Render(fmt.Sprintf("✗ %s", err)))
}

func DisplaySuccess(message string) {
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ %s", message)))
}

func DisplayInfo(message string) {
	fmt.Println(infoStyle.Render(message))
}

// DisplayStep prints one conversation turn while a session runs.
// System prompts are suppressed and long turns are truncated.
func DisplayStep(signature, role, content string) {
	if role == "system" {
		return
	}
	const maxChars = 600
	text := strings.TrimSpace(content)
	if len(text) > maxChars {
		text = text[:maxChars] + "…"
	}
	label := mutedStyle.Render(fmt.Sprintf("[%s %s]", signature, role))
	switch role {
	case "assistant":
		fmt.Printf("%s %s\n", label, text)
	case "tool":
		fmt.Printf("%s %s\n", label, infoStyle.Render(text))
	default:
		fmt.Printf("%s %s\n", label, mutedStyle.Render(text))
	}
}

// DisplayRunReport prints the outcome of a scheduler pass.
func DisplayRunReport(report *scheduler.Report) {
	fmt.Println(headerStyle.Render("Run Report"))
	for _, ar := range report.Agents {
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", titleStyle.Render(ar.Signature))
		if ar.SetupErr != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("  setup failed: %v", ar.SetupErr)))
			fmt.Println(panelStyle.Render(b.String()))
			continue
		}
		if len(ar.Days) == 0 {
			b.WriteString(mutedStyle.Render("  up to date, no sessions run"))
			fmt.Println(panelStyle.Render(b.String()))
			continue
		}

		for _, day := range ar.Days {
			switch {
			case day.Err != nil:
				fmt.Fprintf(&b, "  %s  %s\n", day.Date,
					errorStyle.Render(fmt.Sprintf("FAILED: %v", day.Err)))
			case day.Traded:
				fmt.Fprintf(&b, "  %s  %s\n", day.Date, successStyle.Render("traded"))
			default:
				fmt.Fprintf(&b, "  %s  %s\n", day.Date, mutedStyle.Render("no trade"))
			}
		}
		fmt.Fprintf(&b, "\n  %d completed, %d traded, %d failed",
			ar.Completed, ar.Traded, ar.Failed)
		fmt.Println(panelStyle.Render(b.String()))
	}
}

// DisplaySummary prints one identity's portfolio summary.
func DisplaySummary(s *ledger.Summary) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(s.Signature))
	fmt.Fprintf(&b, "  latest date:   %s\n", s.LatestDate)
	fmt.Fprintf(&b, "  records:       %d\n", s.TotalRecords)
	fmt.Fprintf(&b, "  cash:          %s\n", s.Cash)

	symbols := make([]string, 0, len(s.Positions))
	for sym := range s.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var held bool
	for _, sym := range symbols {
		qty := s.Positions[sym]
		if sym == ledger.CashSymbol || qty.IsZero() {
			continue
		}
		if !held {
			b.WriteString("  holdings:\n")
			held = true
		}
		fmt.Fprintf(&b, "    %-6s %s\n", sym, qty)
	}
	if !held {
		b.WriteString(mutedStyle.Render("  no open positions"))
	}
	fmt.Println(panelStyle.Render(b.String()))
}
