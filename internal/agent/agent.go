// Package agent runs one LLM-driven trading session per trading day:
// it assembles the day's context, converses with the model, dispatches
// tool calls and finalizes the day's ledger entry.
package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/pkrishnath/AI-Trader/config"
	"github.com/pkrishnath/AI-Trader/internal/ledger"
	"github.com/pkrishnath/AI-Trader/internal/market"
	"github.com/pkrishnath/AI-Trader/internal/tools"
)

// Narrator receives each conversation turn as it happens, for console
// rendering. Roles are system, user, assistant and tool.
type Narrator func(signature, role, content string)

// Params carries the collaborators an Agent needs. Model may be left
// nil to have New construct it from the agent config's provider tag.
type Params struct {
	Config   config.AgentConfig
	Model    model.ToolCallingChatModel
	Ledger   *ledger.Store
	Prices   *market.Store
	Searcher tools.Searcher
	Universe []string
	DataDir  string
	MaxSteps int
	Retry    RetryPolicy
	Logger   *zap.Logger
	Narrate  Narrator
}

// Agent is one configured trading identity.
type Agent struct {
	cfg      config.AgentConfig
	model    model.ToolCallingChatModel
	book     *ledger.Store
	prices   *market.Store
	searcher tools.Searcher
	universe []string
	dataDir  string
	maxSteps int
	retry    RetryPolicy
	log      *zap.Logger
	narrate  Narrator
}

func New(ctx context.Context, p Params) (*Agent, error) {
	if p.Ledger == nil || p.Prices == nil {
		return nil, fmt.Errorf("agent %s: ledger and price store are required", p.Config.Signature)
	}
	if p.MaxSteps < 1 {
		return nil, fmt.Errorf("agent %s: max steps must be positive", p.Config.Signature)
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	m := p.Model
	if m == nil {
		var err error
		m, err = NewChatModel(ctx, p.Config)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", p.Config.Signature, err)
		}
	}

	return &Agent{
		cfg:      p.Config,
		model:    m,
		book:     p.Ledger,
		prices:   p.Prices,
		searcher: p.Searcher,
		universe: p.Universe,
		dataDir:  p.DataDir,
		maxSteps: p.MaxSteps,
		retry:    p.Retry,
		log:      log.With(zap.String("signature", p.Config.Signature)),
		narrate:  p.Narrate,
	}, nil
}

func (a *Agent) Signature() string { return a.cfg.Signature }
