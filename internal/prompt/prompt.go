// Package prompt builds the system and user messages for a trading
// session, with tabular data rendered in the compact TOON layout.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pkrishnath/AI-Trader/internal/ledger"
)

// StopSignal is the completion marker the agent emits when it has
// finished updating its positions for the day.
const StopSignal = "<FINISH_SIGNAL>"

const systemTemplate = `You are a stock trading assistant managing a portfolio of NASDAQ-listed equities.

Your goals are to analyze market trends and execute trades to maximize portfolio returns.

Thinking standards:
- Review today's opening prices and your current positions.
- Use the available tools to look up prices, search for recent news, and place buy or sell orders.
- Decide which stocks to buy or sell and in what quantities. Buys execute at today's opening price; sells execute at today's closing price.
- Provide a detailed explanation for your trading decisions. If you do not trade, explain why.

---
### DATA FORMAT (TOON)
---
Position and price data below is in the compact TOON format:
- ` + "`positions[N] {symbol,amount}`" + `: your current holdings, including CASH.
- ` + "`open_prices[N] {symbol,open}`" + `: today's opening prices for the tradable universe.

---
### AVAILABLE INFORMATION
---

**Today's Date:** %s
**Current Positions:**
%s
**Today's Opening Prices:**
%s
When you think your task is complete, output:
%s`

// Row is one TOON record; column order follows the Columns the table
// was built with.
type Row []string

// Toon renders rows in the TOON layout:
//
//	name[2] {a,b}
//	  1 2
//	  3 4
func Toon(name string, columns []string, rows []Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d] {%s}\n", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		b.WriteString("  ")
		b.WriteString(strings.Join(row, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func positionsToon(snap *ledger.Snapshot) string {
	symbols := make([]string, 0, len(snap.Positions))
	for sym, qty := range snap.Positions {
		if sym != ledger.CashSymbol && qty.IsZero() {
			continue
		}
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	rows := make([]Row, 0, len(symbols))
	for _, sym := range symbols {
		rows = append(rows, Row{sym, snap.Positions[sym].String()})
	}
	return Toon("positions", []string{"symbol", "amount"}, rows)
}

func openPricesToon(prices map[string]decimal.Decimal) string {
	symbols := make([]string, 0, len(prices))
	for sym := range prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	rows := make([]Row, 0, len(symbols))
	for _, sym := range symbols {
		rows = append(rows, Row{sym, prices[sym].String()})
	}
	return Toon("open_prices", []string{"symbol", "open"}, rows)
}

// System builds the session system prompt from the agent's latest
// snapshot and today's opening prices.
func System(date string, snap *ledger.Snapshot, openPrices map[string]decimal.Decimal) string {
	return fmt.Sprintf(systemTemplate,
		date, positionsToon(snap), openPricesToon(openPrices), StopSignal)
}

// UserQuery is the opening user turn of a session.
func UserQuery(date string) string {
	return fmt.Sprintf("Please analyze and update today's (%s) positions.", date)
}

// Nudge is appended when the model replies with plain text but no tool
// calls and no completion marker.
func Nudge() string {
	return fmt.Sprintf("Please continue. Call a tool to act on your analysis, or output %s if you are done for today.", StopSignal)
}
