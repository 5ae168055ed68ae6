package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/pkrishnath/AI-Trader/internal/prompt"
	"github.com/pkrishnath/AI-Trader/internal/tools"
)

// ErrPriceUnavailable means no symbol in the universe has an opening
// price for the session date, so no trading context can be built.
var ErrPriceUnavailable = errors.New("no opening prices available")

// State is the phase a trading session is in.
type State string

const (
	StateInit             State = "INIT"
	StateContextReady     State = "CONTEXT_READY"
	StateAwaitingModel    State = "AWAITING_MODEL"
	StateDispatchingTools State = "DISPATCHING_TOOLS"
	StateFinalizing       State = "FINALIZING"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

// Result summarizes one trading session.
type Result struct {
	Signature string
	Date      string
	State     State
	Steps     int
	Traded    bool
	Final     string
	Err       error
}

func (a *Agent) record(slog *sessionLog, role, content string) {
	if err := slog.Append(role, content); err != nil {
		a.log.Warn("session log write failed",
			zap.String("role", role), zap.Error(err))
	}
	if a.narrate != nil {
		a.narrate(a.cfg.Signature, role, content)
	}
}

func (a *Agent) fail(res *Result, err error) (*Result, error) {
	res.State = StateFailed
	res.Err = err
	a.log.Error("session failed",
		zap.String("date", res.Date),
		zap.Int("steps", res.Steps),
		zap.Error(err))
	return res, err
}

// RunSession runs the full trading session for one date. The returned
// error is non-nil only when the session ends in StateFailed; a day
// with no trades still succeeds and records a carry-forward entry.
func (a *Agent) RunSession(ctx context.Context, date string) (*Result, error) {
	res := &Result{Signature: a.cfg.Signature, Date: date, State: StateInit}
	a.log.Info("starting trading session", zap.String("date", date))

	// Assemble context.
	snap, err := a.book.Latest(a.cfg.Signature, date)
	if err != nil {
		return a.fail(res, fmt.Errorf("load positions: %w", err))
	}
	startID := snap.ID
	if head, err := a.book.Head(a.cfg.Signature); err == nil {
		startID = head.ID
	}

	openPrices, err := a.prices.OpenPrices(date, a.universe)
	if err != nil {
		return a.fail(res, fmt.Errorf("load opening prices: %w", err))
	}
	if len(openPrices) == 0 {
		return a.fail(res, fmt.Errorf("%w: %s", ErrPriceUnavailable, date))
	}

	slog, err := newSessionLog(a.dataDir, a.cfg.Signature, date)
	if err != nil {
		return a.fail(res, err)
	}

	gateway := tools.NewGateway(a.book, a.prices, a.searcher, a.cfg.Signature, date, a.log)
	catalog, err := gateway.Catalog(ctx)
	if err != nil {
		return a.fail(res, err)
	}
	bound, err := a.model.WithTools(catalog)
	if err != nil {
		return a.fail(res, fmt.Errorf("bind tools: %w", err))
	}
	res.State = StateContextReady

	system := prompt.System(date, snap, openPrices)
	query := prompt.UserQuery(date)
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(query),
	}
	a.record(slog, "system", system)
	a.record(slog, "user", query)

	// Conversation loop.
	for res.Steps < a.maxSteps {
		res.Steps++
		res.State = StateAwaitingModel

		var reply *schema.Message
		err := a.retry.Do(ctx, func(ctx context.Context) error {
			var genErr error
			reply, genErr = bound.Generate(ctx, messages)
			return genErr
		})
		if err != nil {
			return a.fail(res, fmt.Errorf("model call (step %d): %w", res.Steps, err))
		}

		messages = append(messages, reply)
		if reply.Content != "" {
			a.record(slog, "assistant", reply.Content)
		}

		if strings.Contains(reply.Content, prompt.StopSignal) {
			res.Final = reply.Content
			break
		}

		if len(reply.ToolCalls) > 0 {
			res.State = StateDispatchingTools
			for _, call := range reply.ToolCalls {
				out, err := gateway.Invoke(ctx, call.Function.Name, call.Function.Arguments)
				if err != nil {
					out = toolErrorPayload(err)
					a.log.Warn("tool dispatch failed",
						zap.String("tool", call.Function.Name),
						zap.Error(err))
				}
				messages = append(messages, schema.ToolMessage(out, call.ID))
				a.record(slog, "tool", out)
			}
			continue
		}

		// Plain text with no completion marker and no tool calls.
		nudge := prompt.Nudge()
		messages = append(messages, schema.UserMessage(nudge))
		a.record(slog, "user", nudge)
	}

	// Finalize: a session that never advanced the ledger carries the
	// previous positions forward as an explicit no-trade record.
	res.State = StateFinalizing
	head, err := a.book.Head(a.cfg.Signature)
	if err != nil {
		return a.fail(res, fmt.Errorf("finalize: %w", err))
	}
	res.Traded = head.ID > startID
	if !res.Traded {
		if _, err := a.book.RecordNoTrade(a.cfg.Signature, date); err != nil {
			return a.fail(res, fmt.Errorf("record no-trade: %w", err))
		}
	}

	res.State = StateDone
	a.log.Info("session complete",
		zap.String("date", date),
		zap.Int("steps", res.Steps),
		zap.Bool("traded", res.Traded))
	return res, nil
}

func toolErrorPayload(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
