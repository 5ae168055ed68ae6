// Package market serves daily OHLCV bars from the local price file and
// refreshes that file from Yahoo Finance.
package market

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("price not found")

// Bar is one daily OHLCV record.
type Bar struct {
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// mergedDoc mirrors one line of merged.jsonl. The field names follow the
// upstream data dump this file format came from; note that open and close
// ride under "1. buy price" and "4. sell price".
type mergedDoc struct {
	Meta   map[string]string            `json:"Meta Data"`
	Series map[string]map[string]string `json:"Time Series (Daily)"`
}

const (
	metaSymbolKey = "2. Symbol"
	keyOpen       = "1. buy price"
	keyHigh       = "2. high"
	keyLow        = "3. low"
	keyClose      = "4. sell price"
	keyVolume     = "5. volume"
)

// Store reads the merged.jsonl price file once and answers date/symbol
// lookups from memory.
type Store struct {
	path string

	mu     sync.RWMutex
	loaded bool
	bars   map[string]map[string]Bar // symbol -> date -> bar
}

func NewStore(path string) *Store {
	return &Store{path: path, bars: make(map[string]map[string]Bar)}
}

func (s *Store) load() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("open price data: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc mergedDoc
		if err := json.Unmarshal(line, &doc); err != nil {
			return fmt.Errorf("parse price record: %w", err)
		}
		symbol := doc.Meta[metaSymbolKey]
		if symbol == "" {
			continue
		}
		byDate := s.bars[symbol]
		if byDate == nil {
			byDate = make(map[string]Bar, len(doc.Series))
			s.bars[symbol] = byDate
		}
		for date, fields := range doc.Series {
			bar, err := parseBar(fields)
			if err != nil {
				return fmt.Errorf("parse bar %s %s: %w", symbol, date, err)
			}
			byDate[date] = bar
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan price data: %w", err)
	}
	s.loaded = true
	return nil
}

func parseBar(fields map[string]string) (Bar, error) {
	var bar Bar
	var err error
	if bar.Open, err = decimal.NewFromString(fields[keyOpen]); err != nil {
		return Bar{}, fmt.Errorf("open: %w", err)
	}
	if bar.High, err = decimal.NewFromString(fields[keyHigh]); err != nil {
		return Bar{}, fmt.Errorf("high: %w", err)
	}
	if bar.Low, err = decimal.NewFromString(fields[keyLow]); err != nil {
		return Bar{}, fmt.Errorf("low: %w", err)
	}
	if bar.Close, err = decimal.NewFromString(fields[keyClose]); err != nil {
		return Bar{}, fmt.Errorf("close: %w", err)
	}
	vol, err := decimal.NewFromString(fields[keyVolume])
	if err != nil {
		return Bar{}, fmt.Errorf("volume: %w", err)
	}
	bar.Volume = vol.IntPart()
	return bar, nil
}

// Price returns the bar for symbol on date.
func (s *Store) Price(symbol, date string) (Bar, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Bar{}, fmt.Errorf("date must be YYYY-MM-DD: %q", date)
	}
	if err := s.load(); err != nil {
		return Bar{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	byDate, ok := s.bars[symbol]
	if !ok {
		return Bar{}, fmt.Errorf("%w: no records for symbol %s", ErrNotFound, symbol)
	}
	bar, ok := byDate[date]
	if !ok {
		return Bar{}, fmt.Errorf("%w: %s has no bar on %s (recent: %v)",
			ErrNotFound, symbol, date, s.recentDatesLocked(symbol, 5))
	}
	return bar, nil
}

func (s *Store) recentDatesLocked(symbol string, n int) []string {
	dates := make([]string, 0, len(s.bars[symbol]))
	for d := range s.bars[symbol] {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > n {
		dates = dates[:n]
	}
	return dates
}

// OpenPrices returns opening prices on date for every symbol that
// resolves; symbols without data are simply absent from the result.
func (s *Store) OpenPrices(date string, symbols []string) (map[string]decimal.Decimal, error) {
	if err := s.load(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal)
	for _, sym := range symbols {
		if bar, ok := s.bars[sym][date]; ok {
			out[sym] = bar.Open
		}
	}
	return out, nil
}

// Reload drops the in-memory cache so the next lookup rereads the file.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.bars = make(map[string]map[string]Bar)
}
