// Package scheduler walks each enabled agent through its outstanding
// trading days in order, registering fresh identities and resuming
// interrupted runs from the ledger.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pkrishnath/AI-Trader/config"
	"github.com/pkrishnath/AI-Trader/internal/agent"
	"github.com/pkrishnath/AI-Trader/internal/ledger"
)

// SessionRunner runs one trading day for one identity.
type SessionRunner interface {
	Signature() string
	RunSession(ctx context.Context, date string) (*agent.Result, error)
}

// RunnerFactory builds the runner for one agent entry. It is called
// once per agent per Run.
type RunnerFactory func(ctx context.Context, cfg config.AgentConfig) (SessionRunner, error)

// DayOutcome is the result of one scheduled session.
type DayOutcome struct {
	Date   string
	State  agent.State
	Traded bool
	Err    error
}

// AgentReport collects a single agent's run.
type AgentReport struct {
	Signature string
	Days      []DayOutcome
	Completed int
	Failed    int
	Traded    int
	SetupErr  error
}

// Report is the outcome of a full scheduler pass.
type Report struct {
	Agents []AgentReport
}

type Scheduler struct {
	cfg     *config.Config
	book    *ledger.Store
	factory RunnerFactory
	log     *zap.Logger
	source  func() *config.Config
}

func New(cfg *config.Config, book *ledger.Store, factory RunnerFactory, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, book: book, factory: factory, log: log}
}

// SetConfigSource installs a live config getter, consulted before each
// agent so enable flags flipped mid-run take effect between agents.
func (s *Scheduler) SetConfigSource(source func() *config.Config) {
	s.source = source
}

func (s *Scheduler) stillEnabled(signature string) bool {
	if s.source == nil {
		return true
	}
	cfg := s.source()
	if cfg == nil {
		return true
	}
	for _, a := range cfg.EnabledAgents() {
		if a.Signature == signature {
			return true
		}
	}
	return false
}

// TradingDays lists the weekdays from start to end inclusive, both in
// YYYY-MM-DD form.
func TradingDays(start, end string) ([]string, error) {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s precedes start date %s", end, start)
	}

	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		default:
			days = append(days, d.Format("2006-01-02"))
		}
	}
	return days, nil
}

// pendingDays returns the trading days the identity still has to run:
// everything after its last ledger date, through the configured end.
// A fresh identity is registered at the init date first.
func (s *Scheduler) pendingDays(signature string) ([]string, error) {
	registered, err := s.book.Registered(signature)
	if err != nil {
		return nil, err
	}
	if !registered {
		_, err := s.book.Register(signature, s.cfg.DateRange.InitDate,
			s.cfg.Universe, decimal.NewFromFloat(s.cfg.InitialCash))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", signature, err)
		}
		s.log.Info("registered new identity",
			zap.String("signature", signature),
			zap.String("date", s.cfg.DateRange.InitDate))
	}

	last, err := s.book.LastDate(signature)
	if err != nil {
		return nil, err
	}

	all, err := TradingDays(s.cfg.DateRange.InitDate, s.cfg.DateRange.EndDate)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, day := range all {
		if day > last {
			pending = append(pending, day)
		}
	}
	return pending, nil
}

// Run drives every enabled agent sequentially. A failed session is
// recorded and the agent's remaining days still run; only setup
// errors end an identity's schedule. ctx cancellation stops everything.
func (s *Scheduler) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	for _, agentCfg := range s.cfg.EnabledAgents() {
		if !s.stillEnabled(agentCfg.Signature) {
			s.log.Info("agent disabled since run start, skipping",
				zap.String("signature", agentCfg.Signature))
			continue
		}
		ar := s.runAgent(ctx, agentCfg)
		report.Agents = append(report.Agents, ar)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}
	return report, nil
}

func (s *Scheduler) runAgent(ctx context.Context, agentCfg config.AgentConfig) AgentReport {
	ar := AgentReport{Signature: agentCfg.Signature}
	log := s.log.With(zap.String("signature", agentCfg.Signature))

	days, err := s.pendingDays(agentCfg.Signature)
	if err != nil {
		ar.SetupErr = err
		log.Error("schedule setup failed", zap.Error(err))
		return ar
	}
	if len(days) == 0 {
		log.Info("nothing to do, ledger is up to date")
		return ar
	}

	runner, err := s.factory(ctx, agentCfg)
	if err != nil {
		ar.SetupErr = err
		log.Error("runner construction failed", zap.Error(err))
		return ar
	}

	log.Info("running sessions",
		zap.Int("days", len(days)),
		zap.String("from", days[0]),
		zap.String("to", days[len(days)-1]))

	for _, day := range days {
		if ctx.Err() != nil {
			return ar
		}
		res, err := runner.RunSession(ctx, day)
		outcome := DayOutcome{Date: day, Err: err}
		if res != nil {
			outcome.State = res.State
			outcome.Traded = res.Traded
		}
		ar.Days = append(ar.Days, outcome)

		if err != nil {
			ar.Failed++
			log.Error("session failed, continuing with next date",
				zap.String("date", day), zap.Error(err))
			continue
		}
		ar.Completed++
		if outcome.Traded {
			ar.Traded++
		}
	}
	return ar
}
