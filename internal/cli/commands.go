// Package cli wires the configuration, stores, scheduler and agents
// into the trader command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pkrishnath/AI-Trader/config"
	"github.com/pkrishnath/AI-Trader/internal/agent"
	"github.com/pkrishnath/AI-Trader/internal/ledger"
	"github.com/pkrishnath/AI-Trader/internal/market"
	"github.com/pkrishnath/AI-Trader/internal/scheduler"
	"github.com/pkrishnath/AI-Trader/internal/search"
)

const version = "1.0.0"

type app struct {
	cfg      *config.Config
	mgr      *config.Manager
	log      *zap.Logger
	book     *ledger.Store
	prices   *market.Store
	searcher *search.Client
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	// The manager writes a default config file on first run.
	mgr, err := config.NewManager(config.WithConfigPath(cfgPath))
	if err != nil {
		return nil, err
	}
	loaded := mgr.Get()
	cfg := &loaded
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create data directories: %w", err)
	}

	var log *zap.Logger
	if cfg.Debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	log = log.With(zap.String("run_id", uuid.NewString()))

	return &app{
		cfg:      cfg,
		mgr:      mgr,
		log:      log,
		book:     ledger.NewStore(cfg.DataDir, log),
		prices:   market.NewStore(cfg.PriceDataPath),
		searcher: search.NewClient(log),
	}, nil
}

func (a *app) close() {
	a.log.Sync()
}

// NewRootCmd builds the trader command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "AI-Trader - autonomous LLM trading simulator",
		Long: `AI-Trader runs one LLM-backed trading agent per configured model.
Each agent manages its own simulated portfolio day by day: it reads prices,
searches the web, reasons about the market and places buy/sell orders
through tools. Every decision is recorded in an append-only ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			DisplayBanner()
			agents := a.cfg.EnabledAgents()
			if len(agents) == 0 {
				DisplayInfo("No enabled agents in the configuration. Edit the models section and retry.")
				return nil
			}
			ok, err := ConfirmRun(len(agents), a.cfg.DateRange.InitDate, a.cfg.DateRange.EndDate)
			if err != nil {
				return err
			}
			if !ok {
				DisplayInfo("Aborted.")
				return nil
			}
			return runScheduler(a, "")
		},
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newPricesCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "config.json", "Configuration file path")

	return rootCmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run outstanding trading sessions for all enabled agents",
		Long: `Run every enabled agent through its outstanding trading days,
from the day after its last ledger entry through the configured end date.
Fresh agents are registered at the init date first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			only, _ := cmd.Flags().GetString("agent")
			return runScheduler(a, only)
		},
	}
	cmd.Flags().String("agent", "", "Run only the agent with this signature")
	return cmd
}

func runScheduler(a *app, only string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := *a.cfg
	if only != "" {
		var filtered []config.AgentConfig
		for _, ac := range cfg.Agents {
			if ac.Signature == only {
				filtered = append(filtered, ac)
			}
		}
		if len(filtered) == 0 {
			return fmt.Errorf("no configured agent with signature %q", only)
		}
		cfg.Agents = filtered
	}

	retry := agent.NewRetryPolicy(cfg.MaxRetries, cfg.BaseDelayDuration())
	factory := func(ctx context.Context, ac config.AgentConfig) (scheduler.SessionRunner, error) {
		return agent.New(ctx, agent.Params{
			Config:   ac,
			Ledger:   a.book,
			Prices:   a.prices,
			Searcher: a.searcher,
			Universe: cfg.Universe,
			DataDir:  cfg.DataDir,
			MaxSteps: cfg.MaxSteps,
			Retry:    retry,
			Logger:   a.log,
			Narrate:  DisplayStep,
		})
	}

	s := scheduler.New(&cfg, a.book, factory, a.log)

	// Enable flags edited in the config file apply between agents.
	if err := a.mgr.Watch(ctx, nil); err != nil {
		a.log.Warn("config watch unavailable", zap.Error(err))
	} else {
		s.SetConfigSource(func() *config.Config {
			live := a.mgr.Get()
			live.ApplyEnvOverrides()
			if err := live.Validate(); err != nil {
				return nil
			}
			return &live
		})
	}

	report, err := s.Run(ctx)
	if report != nil {
		DisplayRunReport(report)
	}
	if err != nil {
		return err
	}
	for _, ar := range report.Agents {
		if ar.Failed > 0 || ar.SetupErr != nil {
			return fmt.Errorf("run finished with failures")
		}
	}
	DisplaySuccess("All sessions completed.")
	return nil
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register enabled agents in the ledger at the init date",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			for _, ac := range a.cfg.EnabledAgents() {
				registered, err := a.book.Registered(ac.Signature)
				if err != nil {
					return err
				}
				if registered {
					DisplayInfo(fmt.Sprintf("%s: already registered", ac.Signature))
					continue
				}
				if _, err := a.book.Register(ac.Signature, a.cfg.DateRange.InitDate,
					a.cfg.Universe, decimal.NewFromFloat(a.cfg.InitialCash)); err != nil {
					return fmt.Errorf("register %s: %w", ac.Signature, err)
				}
				DisplaySuccess(fmt.Sprintf("%s: registered at %s with %.2f cash",
					ac.Signature, a.cfg.DateRange.InitDate, a.cfg.InitialCash))
			}
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [SIGNATURE]",
		Short: "Show portfolio summaries from the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			signatures := make([]string, 0, len(a.cfg.Agents))
			if len(args) == 1 {
				signatures = append(signatures, args[0])
			} else {
				for _, ac := range a.cfg.Agents {
					signatures = append(signatures, ac.Signature)
				}
			}

			var shown int
			for _, sig := range signatures {
				registered, err := a.book.Registered(sig)
				if err != nil {
					return err
				}
				if !registered {
					DisplayInfo(fmt.Sprintf("%s: not registered yet", sig))
					continue
				}
				summary, err := a.book.Summarize(sig)
				if err != nil {
					return err
				}
				DisplaySummary(summary)
				shown++
			}
			if shown == 0 {
				DisplayInfo("Nothing to report. Run `trader run` first.")
			}
			return nil
		},
	}
}

func newPricesCmd() *cobra.Command {
	pricesCmd := &cobra.Command{
		Use:   "prices",
		Short: "Price data management",
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download daily bars for the trading universe",
		Long: `Download daily OHLCV bars from Yahoo Finance for every symbol in
the trading universe and merge them into the local price file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			startStr, _ := cmd.Flags().GetString("start")
			endStr, _ := cmd.Flags().GetString("end")
			if startStr == "" {
				startStr = a.cfg.DateRange.InitDate
			}
			if endStr == "" {
				endStr = a.cfg.DateRange.EndDate
			}
			start, err := time.Parse("2006-01-02", startStr)
			if err != nil {
				return fmt.Errorf("invalid start date, use YYYY-MM-DD: %w", err)
			}
			end, err := time.Parse("2006-01-02", endStr)
			if err != nil {
				return fmt.Errorf("invalid end date, use YYYY-MM-DD: %w", err)
			}

			DisplayInfo(fmt.Sprintf("Fetching %d symbols from %s to %s...",
				len(a.cfg.Universe), startStr, endStr))

			fetcher := market.NewFetcher(a.cfg.PriceDataPath, a.log)
			fetched, failed, err := fetcher.FetchDaily(a.cfg.Universe, start, end.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			if failed > 0 {
				DisplayInfo(fmt.Sprintf("%d symbols failed to download", failed))
			}
			DisplaySuccess(fmt.Sprintf("Merged bars for %d symbols into %s", fetched, a.cfg.PriceDataPath))
			return nil
		},
	}
	fetchCmd.Flags().String("start", "", "Start date YYYY-MM-DD (default: configured init date)")
	fetchCmd.Flags().String("end", "", "End date YYYY-MM-DD (default: configured end date)")
	pricesCmd.AddCommand(fetchCmd)

	return pricesCmd
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			showConfig(a.cfg)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return validateConfig(a.cfg)
		},
	})

	return configCmd
}

func showConfig(cfg *config.Config) {
	fmt.Println(headerStyle.Render("Configuration"))
	fmt.Printf("Data Directory:    %s\n", cfg.DataDir)
	fmt.Printf("Price Data:        %s\n", cfg.PriceDataPath)
	fmt.Printf("Date Range:        %s .. %s\n", cfg.DateRange.InitDate, cfg.DateRange.EndDate)
	fmt.Printf("Max Steps:         %d\n", cfg.MaxSteps)
	fmt.Printf("Max Retries:       %d\n", cfg.MaxRetries)
	fmt.Printf("Base Delay:        %.1fs\n", cfg.BaseDelay)
	fmt.Printf("Initial Cash:      %.2f\n", cfg.InitialCash)
	fmt.Printf("Universe:          %d symbols\n", len(cfg.Universe))
	fmt.Println()

	fmt.Println("Agents:")
	for _, ac := range cfg.Agents {
		state := "disabled"
		if ac.Enabled {
			state = "enabled"
		}
		key := "no API key"
		if ac.APIKey() != "" {
			key = "API key resolved"
		}
		fmt.Printf("  %-24s %s/%s  [%s, %s]\n",
			ac.Signature, ac.Provider, ac.Model, state, key)
	}
}

func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	var warnings []string
	for _, ac := range cfg.EnabledAgents() {
		if ac.APIKey() == "" {
			warnings = append(warnings,
				fmt.Sprintf("agent %s has no API key (set %s)", ac.Signature, keyHint(ac)))
		}
	}
	if _, err := os.Stat(cfg.PriceDataPath); os.IsNotExist(err) {
		warnings = append(warnings,
			fmt.Sprintf("price data file %s missing; run `trader prices fetch`", cfg.PriceDataPath))
	}

	if len(warnings) == 0 {
		DisplaySuccess("Configuration is valid.")
		return nil
	}
	for _, w := range warnings {
		DisplayInfo("warning: " + w)
	}
	fmt.Printf("\nConfiguration is valid with %d warning(s).\n", len(warnings))
	return nil
}

func keyHint(ac config.AgentConfig) string {
	if ac.APIKeyEnv != "" {
		return ac.APIKeyEnv
	}
	return strings.ToUpper(ac.Provider) + "_API_KEY"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("AI-Trader v%s\n", version)
			fmt.Println("Autonomous LLM trading simulator")
		},
	}
}
