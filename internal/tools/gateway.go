package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/pkrishnath/AI-Trader/internal/ledger"
	"github.com/pkrishnath/AI-Trader/internal/market"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Gateway holds the tool set for one agent session, bound to that
// session's signature and trading date.
type Gateway struct {
	names []string
	tools map[string]tool.InvokableTool
	log   *zap.Logger
}

// NewGateway builds a session-scoped gateway. Trade and price tools are
// bound to signature and date; searcher may be nil to omit web search.
func NewGateway(book *ledger.Store, prices *market.Store, searcher Searcher,
	signature, date string, log *zap.Logger) *Gateway {

	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{tools: make(map[string]tool.InvokableTool), log: log}

	g.register(newBuyTool(book, prices, signature, date, log))
	g.register(newSellTool(book, prices, signature, date, log))
	g.register(newPriceTool(prices, date))
	if searcher != nil {
		g.register(newSearchTool(searcher))
	}
	g.register(newAddTool())
	g.register(newMultiplyTool())
	return g
}

func (g *Gateway) register(t tool.InvokableTool) {
	info, err := t.Info(context.Background())
	if err != nil || info == nil {
		panic(fmt.Sprintf("tool without info: %v", err))
	}
	g.names = append(g.names, info.Name)
	g.tools[info.Name] = t
}

// Catalog returns tool descriptors in registration order, for binding
// to a chat model.
func (g *Gateway) Catalog(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(g.names))
	for _, name := range g.names {
		info, err := g.tools[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe tool %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Invoke dispatches one tool call. Domain failures come back inside the
// result payload; only unknown names, malformed arguments and execution
// faults surface as errors.
func (g *Gateway) Invoke(ctx context.Context, name, argsJSON string) (string, error) {
	t, ok := g.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if argsJSON == "" {
		argsJSON = "{}"
	}
	if !json.Valid([]byte(argsJSON)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidArguments, name)
	}

	g.log.Debug("tool call", zap.String("tool", name), zap.String("args", argsJSON))
	out, err := t.InvokableRun(ctx, argsJSON)
	if err != nil {
		return "", fmt.Errorf("run tool %s: %w", name, err)
	}
	return out, nil
}
