// Package tools exposes the trading, pricing, search and arithmetic
// tools an agent can call during a session.
package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pkrishnath/AI-Trader/internal/ledger"
	"github.com/pkrishnath/AI-Trader/internal/market"
	"github.com/pkrishnath/AI-Trader/internal/search"
)

// Searcher is the slice of the search client the tools need.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]search.Result, error)
}

type tradeInput struct {
	Symbol string `json:"symbol"`
	Amount int    `json:"amount"`
}

// tradeOutput is returned for both executed and rejected trades; a
// rejection carries Error and leaves the ledger untouched.
type tradeOutput struct {
	Status    string            `json:"status"`
	Symbol    string            `json:"symbol,omitempty"`
	Amount    int               `json:"amount,omitempty"`
	Price     string            `json:"price,omitempty"`
	Positions map[string]string `json:"positions,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func rejected(err error) *tradeOutput {
	return &tradeOutput{Status: "rejected", Error: err.Error()}
}

func executed(symbol string, amount int, price decimal.Decimal, snap *ledger.Snapshot) *tradeOutput {
	positions := make(map[string]string, len(snap.Positions))
	for sym, qty := range snap.Positions {
		positions[sym] = qty.String()
	}
	return &tradeOutput{
		Status:    "executed",
		Symbol:    symbol,
		Amount:    amount,
		Price:     price.String(),
		Positions: positions,
	}
}

func newBuyTool(book *ledger.Store, prices *market.Store, signature, date string, log *zap.Logger) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "buy",
			Desc: "Buy a number of shares of a stock at today's opening price.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol": {
					Type:     "string",
					Desc:     "The stock symbol to buy",
					Required: true,
				},
				"amount": {
					Type:     "integer",
					Desc:     "Number of shares to buy",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, input tradeInput) (*tradeOutput, error) {
			bar, err := prices.Price(input.Symbol, date)
			if err != nil {
				return rejected(err), nil
			}
			snap, err := book.Apply(signature, date, ledger.Intent{
				Symbol:   input.Symbol,
				Side:     ledger.Buy,
				Quantity: decimal.NewFromInt(int64(input.Amount)),
			}, bar.Open)
			if err != nil {
				log.Warn("buy rejected",
					zap.String("signature", signature),
					zap.String("symbol", input.Symbol),
					zap.Error(err))
				return rejected(err), nil
			}
			log.Info("buy executed",
				zap.String("signature", signature),
				zap.String("symbol", input.Symbol),
				zap.Int("amount", input.Amount),
				zap.String("price", bar.Open.String()))
			return executed(input.Symbol, input.Amount, bar.Open, snap), nil
		},
	)
}

func newSellTool(book *ledger.Store, prices *market.Store, signature, date string, log *zap.Logger) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "sell",
			Desc: "Sell a number of shares of a stock at today's closing price.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol": {
					Type:     "string",
					Desc:     "The stock symbol to sell",
					Required: true,
				},
				"amount": {
					Type:     "integer",
					Desc:     "Number of shares to sell",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, input tradeInput) (*tradeOutput, error) {
			bar, err := prices.Price(input.Symbol, date)
			if err != nil {
				return rejected(err), nil
			}
			snap, err := book.Apply(signature, date, ledger.Intent{
				Symbol:   input.Symbol,
				Side:     ledger.Sell,
				Quantity: decimal.NewFromInt(int64(input.Amount)),
			}, bar.Close)
			if err != nil {
				log.Warn("sell rejected",
					zap.String("signature", signature),
					zap.String("symbol", input.Symbol),
					zap.Error(err))
				return rejected(err), nil
			}
			log.Info("sell executed",
				zap.String("signature", signature),
				zap.String("symbol", input.Symbol),
				zap.Int("amount", input.Amount),
				zap.String("price", bar.Close.String()))
			return executed(input.Symbol, input.Amount, bar.Close, snap), nil
		},
	)
}

type priceInput struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
}

type priceOutput struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Open   string `json:"open,omitempty"`
	High   string `json:"high,omitempty"`
	Low    string `json:"low,omitempty"`
	Close  string `json:"close,omitempty"`
	Volume int64  `json:"volume,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newPriceTool(prices *market.Store, defaultDate string) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "get_price",
			Desc: "Get the daily open, high, low, close and volume for a stock on a given date.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol": {
					Type:     "string",
					Desc:     "The stock symbol",
					Required: true,
				},
				"date": {
					Type:     "string",
					Desc:     "Date in YYYY-MM-DD form; defaults to the session date",
					Required: false,
				},
			}),
		},
		func(ctx context.Context, input priceInput) (*priceOutput, error) {
			date := input.Date
			if date == "" {
				date = defaultDate
			}
			bar, err := prices.Price(input.Symbol, date)
			if err != nil {
				return &priceOutput{Symbol: input.Symbol, Date: date, Error: err.Error()}, nil
			}
			return &priceOutput{
				Symbol: input.Symbol,
				Date:   date,
				Open:   bar.Open.String(),
				High:   bar.High.String(),
				Low:    bar.Low.String(),
				Close:  bar.Close.String(),
				Volume: bar.Volume,
			}, nil
		},
	)
}

type searchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchOutput struct {
	Results []search.Result `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newSearchTool(searcher Searcher) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "search",
			Desc: "Search the web for recent news and information.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "The search query",
					Required: true,
				},
				"max_results": {
					Type:     "integer",
					Desc:     "Maximum number of results (default: 5)",
					Required: false,
				},
			}),
		},
		func(ctx context.Context, input searchInput) (*searchOutput, error) {
			results, err := searcher.Search(ctx, input.Query, input.MaxResults)
			if err != nil {
				return &searchOutput{Error: err.Error()}, nil
			}
			return &searchOutput{Results: results}, nil
		},
	)
}

type mathInput struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type mathOutput struct {
	Result float64 `json:"result"`
}

func newAddTool() tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "add",
			Desc: "Add two numbers.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"a": {Type: "number", Desc: "First operand", Required: true},
				"b": {Type: "number", Desc: "Second operand", Required: true},
			}),
		},
		func(ctx context.Context, input mathInput) (*mathOutput, error) {
			return &mathOutput{Result: input.A + input.B}, nil
		},
	)
}

func newMultiplyTool() tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "multiply",
			Desc: "Multiply two numbers.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"a": {Type: "number", Desc: "First operand", Required: true},
				"b": {Type: "number", Desc: "Second operand", Required: true},
			}),
		},
		func(ctx context.Context, input mathInput) (*mathOutput, error) {
			return &mathOutput{Result: input.A * input.B}, nil
		},
	)
}
