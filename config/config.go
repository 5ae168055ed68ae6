package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultStockSymbols is the NASDAQ-100 universe used when a run config
// does not name its own trading universe.
var DefaultStockSymbols = []string{
	"NVDA", "MSFT", "AAPL", "GOOG", "GOOGL", "AMZN", "META", "AVGO", "TSLA", "NFLX",
	"PLTR", "COST", "ASML", "AMD", "CSCO", "AZN", "TMUS", "MU", "LIN", "PEP",
	"SHOP", "APP", "INTU", "AMAT", "LRCX", "PDD", "QCOM", "ARM", "INTC", "BKNG",
	"AMGN", "TXN", "ISRG", "GILD", "KLAC", "PANW", "ADBE", "HON", "CRWD", "CEG",
	"ADI", "ADP", "DASH", "CMCSA", "VRTX", "MELI", "SBUX", "CDNS", "ORLY", "SNPS",
	"MSTR", "MDLZ", "ABNB", "MRVL", "CTAS", "TRI", "MAR", "MNST", "CSX", "ADSK",
	"PYPL", "FTNT", "AEP", "WDAY", "REGN", "ROP", "NXPI", "DDOG", "AXON", "ROST",
	"IDXX", "EA", "PCAR", "FAST", "EXC", "TTWO", "XEL", "ZS", "PAYX", "WBD",
	"BKR", "CPRT", "CCEP", "FANG", "TEAM", "CHTR", "KDP", "MCHP", "GEHC", "VRSK",
	"CTSH", "CSGP", "KHC", "ODFL", "DXCM", "TTD", "ON", "BIIB", "LULU", "CDW",
	"GFS",
}

// AgentConfig binds one reasoning-backend identity to a ledger stream.
type AgentConfig struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Provider  string `json:"provider"`
	Model     string `json:"basemodel"`
	BaseURL   string `json:"base_url,omitempty"`
	// APIKeyEnv names the environment variable holding the credential.
	// Keys never live in the run config itself.
	APIKeyEnv string `json:"api_key_env,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// APIKey resolves the credential for this identity.
func (a AgentConfig) APIKey() string {
	if a.APIKeyEnv != "" {
		return os.Getenv(a.APIKeyEnv)
	}
	switch a.Provider {
	case "deepseek":
		return os.Getenv("DEEPSEEK_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

type DateRange struct {
	InitDate string `json:"init_date"`
	EndDate  string `json:"end_date"`
}

type Config struct {
	DataDir       string `json:"data_dir"`
	PriceDataPath string `json:"price_data_path"`

	DateRange DateRange `json:"date_range"`

	MaxSteps    int     `json:"max_steps"`
	MaxRetries  int     `json:"max_retries"`
	BaseDelay   float64 `json:"base_delay"` // seconds
	InitialCash float64 `json:"initial_cash"`

	Universe []string      `json:"trading_universe,omitempty"`
	Agents   []AgentConfig `json:"models"`

	Debug bool `json:"debug"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	return &Config{
		DataDir:       filepath.Join(currentDir, "data", "agent_data"),
		PriceDataPath: filepath.Join(currentDir, "data", "merged.jsonl"),
		DateRange: DateRange{
			InitDate: "2025-10-13",
			EndDate:  "TODAY",
		},
		MaxSteps:    10,
		MaxRetries:  3,
		BaseDelay:   0.5,
		InitialCash: 10000.0,
		Universe:    DefaultStockSymbols,
		Debug:       false,
	}
}

// Load reads a run config from path, layering .env, the JSON file and
// environment overrides, then resolves dynamic dates and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.ResolveDates(time.Now()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides layers INIT_DATE, END_DATE and TRADING_SYMBOLS from
// the environment over the file config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("INIT_DATE"); v != "" {
		c.DateRange.InitDate = v
	}
	if v := os.Getenv("END_DATE"); v != "" {
		c.DateRange.EndDate = v
	}
	if v := strings.TrimSpace(os.Getenv("TRADING_SYMBOLS")); v != "" {
		parts := strings.Split(v, ",")
		symbols := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			c.Universe = symbols
		}
	}
}

// ResolveDates rewrites TODAY / TODAY-n placeholders against now.
func (c *Config) ResolveDates(now time.Time) error {
	var err error
	if c.DateRange.InitDate, err = resolveDynamicDate(c.DateRange.InitDate, now); err != nil {
		return fmt.Errorf("init_date: %w", err)
	}
	if c.DateRange.EndDate, err = resolveDynamicDate(c.DateRange.EndDate, now); err != nil {
		return fmt.Errorf("end_date: %w", err)
	}
	return nil
}

func resolveDynamicDate(s string, now time.Time) (string, error) {
	if !strings.HasPrefix(s, "TODAY") {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "", fmt.Errorf("invalid date %q", s)
		}
		return s, nil
	}
	offset := 0
	if rest := strings.TrimPrefix(s, "TODAY"); rest != "" {
		if _, err := fmt.Sscanf(rest, "-%d", &offset); err != nil {
			return "", fmt.Errorf("invalid dynamic date %q", s)
		}
		offset = -offset
	}
	return now.AddDate(0, 0, offset).Format("2006-01-02"), nil
}

func (c *Config) Validate() error {
	initDate, err := time.Parse("2006-01-02", c.DateRange.InitDate)
	if err != nil {
		return fmt.Errorf("invalid init_date %q", c.DateRange.InitDate)
	}
	endDate, err := time.Parse("2006-01-02", c.DateRange.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end_date %q", c.DateRange.EndDate)
	}
	if initDate.After(endDate) {
		return fmt.Errorf("init_date %s is after end_date %s", c.DateRange.InitDate, c.DateRange.EndDate)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must not be negative, got %v", c.BaseDelay)
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("initial_cash must be positive, got %v", c.InitialCash)
	}
	if len(c.Universe) == 0 {
		return fmt.Errorf("trading universe is empty")
	}
	seen := map[string]bool{}
	for _, a := range c.Agents {
		if a.Signature == "" {
			return fmt.Errorf("model %q is missing a signature", a.Name)
		}
		if a.Model == "" {
			return fmt.Errorf("model %q is missing a basemodel", a.Name)
		}
		if seen[a.Signature] {
			return fmt.Errorf("duplicate signature %q", a.Signature)
		}
		seen[a.Signature] = true
	}
	return nil
}

// EnabledAgents filters the identity list down to enabled entries.
func (c *Config) EnabledAgents() []AgentConfig {
	out := make([]AgentConfig, 0, len(c.Agents))
	for _, a := range c.Agents {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// BaseDelayDuration converts the configured base delay into a Duration.
func (c *Config) BaseDelayDuration() time.Duration {
	return time.Duration(c.BaseDelay * float64(time.Second))
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.PriceDataPath)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
