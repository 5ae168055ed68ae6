// Package ledger keeps the append-only position history for each agent
// signature. Every record is one immutable snapshot of the portfolio; a
// trade never edits history, it appends a new snapshot with the next id.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CashSymbol is the reserved holding that carries the cash balance.
const CashSymbol = "CASH"

func init() {
	// position.jsonl stores bare numbers, not quoted decimals.
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	ErrAlreadyRegistered    = errors.New("signature already registered")
	ErrNoPosition           = errors.New("no position record for signature")
	ErrInsufficientFunds    = errors.New("insufficient cash")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrInvalidQuantity      = errors.New("trade quantity must be positive")
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Intent is a request to move a position. It is never persisted itself,
// only the snapshot it produces is.
type Intent struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
}

// Action is the trade annotation carried on a snapshot record.
type Action struct {
	Action string          `json:"action"`
	Symbol string          `json:"symbol,omitempty"`
	Amount decimal.Decimal `json:"amount,omitempty"`
}

// Snapshot is one ledger record. ID is assigned by the store on append
// and strictly increases within a signature's stream.
type Snapshot struct {
	Date       string                     `json:"date"`
	ID         int64                      `json:"id"`
	LastAction *Action                    `json:"this_action,omitempty"`
	Positions  map[string]decimal.Decimal `json:"positions"`
}

// Cash returns the snapshot's cash balance.
func (s Snapshot) Cash() decimal.Decimal {
	return s.Positions[CashSymbol]
}

// Holding returns the quantity held for symbol (zero when absent).
func (s Snapshot) Holding(symbol string) decimal.Decimal {
	return s.Positions[symbol]
}

func (s Snapshot) clonePositions() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Positions))
	for k, v := range s.Positions {
		out[k] = v
	}
	return out
}

// Store owns one position.jsonl stream per signature under root.
// Operations on the same signature are serialized; different signatures
// never block each other.
type Store struct {
	root string
	log  *zap.Logger

	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	mu      sync.Mutex
	path    string
	loaded  bool
	records []Snapshot
}

func NewStore(root string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		root:    root,
		log:     log,
		streams: make(map[string]*stream),
	}
}

func (s *Store) stream(signature string) *stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[signature]
	if !ok {
		st = &stream{
			path: filepath.Join(s.root, signature, "position", "position.jsonl"),
		}
		s.streams[signature] = st
	}
	return st
}

func (st *stream) load() error {
	if st.loaded {
		return nil
	}
	f, err := os.Open(st.path)
	if os.IsNotExist(err) {
		st.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			return fmt.Errorf("parse ledger record: %w", err)
		}
		st.records = append(st.records, snap)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan ledger: %w", err)
	}
	st.loaded = true
	return nil
}

func (st *stream) append(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(st.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	st.records = append(st.records, snap)
	return nil
}

// Register creates the day-zero snapshot: every universe symbol at zero,
// cash at initialCash.
func (s *Store) Register(signature, date string, universe []string, initialCash decimal.Decimal) (*Snapshot, error) {
	st := s.stream(signature)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.load(); err != nil {
		return nil, err
	}
	if len(st.records) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, signature)
	}

	positions := make(map[string]decimal.Decimal, len(universe)+1)
	for _, sym := range universe {
		positions[sym] = decimal.Zero
	}
	positions[CashSymbol] = initialCash

	snap := Snapshot{Date: date, ID: 0, Positions: positions}
	if err := st.append(snap); err != nil {
		return nil, err
	}
	s.log.Info("registered agent ledger",
		zap.String("signature", signature),
		zap.String("date", date),
		zap.String("initial_cash", initialCash.String()),
	)
	return &snap, nil
}

// Latest returns the most recent snapshot dated at or before date.
func (s *Store) Latest(signature, date string) (*Snapshot, error) {
	st := s.stream(signature)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.load(); err != nil {
		return nil, err
	}
	for i := len(st.records) - 1; i >= 0; i-- {
		if st.records[i].Date <= date {
			snap := st.records[i]
			snap.Positions = st.records[i].clonePositions()
			return &snap, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoPosition, signature)
}

// Head returns the last snapshot in the stream regardless of date.
func (s *Store) Head(signature string) (*Snapshot, error) {
	st := s.stream(signature)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.load(); err != nil {
		return nil, err
	}
	if len(st.records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, signature)
	}
	snap := st.records[len(st.records)-1]
	snap.Positions = snap.clonePositions()
	return &snap, nil
}

// LastDate returns the max date present in the stream, used by the
// scheduler to resume after the last processed trading day.
func (s *Store) LastDate(signature string) (string, error) {
	st := s.stream(signature)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.load(); err != nil {
		return "", err
	}
	if len(st.records) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoPosition, signature)
	}
	max := st.records[0].Date
	for _, r := range st.records[1:] {
		if r.Date > max {
			max = r.Date
		}
	}
	return max, nil
}

// Apply validates intent against the current head position and, when it
// passes, appends the derived snapshot. Either the full quantity trades
// or nothing changes.
func (s *Store) Apply(signature, date string, intent Intent, unitPrice decimal.Decimal) (*Snapshot, error) {
	st := s.stream(signature)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.load(); err != nil {
		return nil, err
	}
	if len(st.records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, signature)
	}
	if !intent.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidQuantity, intent.Quantity)
	}

	prev := st.records[len(st.records)-1]
	positions := prev.clonePositions()
	cost := intent.Quantity.Mul(unitPrice)

	switch intent.Side {
	case Buy:
		cash := positions[CashSymbol]
		if cost.GreaterThan(cash) {
			return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost, cash)
		}
		positions[CashSymbol] = cash.Sub(cost)
		positions[intent.Symbol] = positions[intent.Symbol].Add(intent.Quantity)
	case Sell:
		held := positions[intent.Symbol]
		if intent.Quantity.GreaterThan(held) {
			return nil, fmt.Errorf("%w: have %s %s, want to sell %s",
				ErrInsufficientHoldings, held, intent.Symbol, intent.Quantity)
		}
		positions[intent.Symbol] = held.Sub(intent.Quantity)
		positions[CashSymbol] = positions[CashSymbol].Add(cost)
	default:
		return nil, fmt.Errorf("unknown trade side %q", intent.Side)
	}

	snap := Snapshot{
		Date: date,
		ID:   prev.ID + 1,
		LastAction: &Action{
			Action: string(intent.Side),
			Symbol: intent.Symbol,
			Amount: intent.Quantity,
		},
		Positions: positions,
	}
	if err := st.append(snap); err != nil {
		return nil, err
	}
	s.log.Info("trade applied",
		zap.String("signature", signature),
		zap.String("date", date),
		zap.String("side", string(intent.Side)),
		zap.String("symbol", intent.Symbol),
		zap.String("quantity", intent.Quantity.String()),
		zap.String("unit_price", unitPrice.String()),
		zap.Int64("id", snap.ID),
	)
	return &snap, nil
}

// RecordNoTrade appends a snapshot identical to the head, keeping the
// stream complete for trading days where the agent held.
func (s *Store) RecordNoTrade(signature, date string) (*Snapshot, error) {
	st := s.stream(signature)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.load(); err != nil {
		return nil, err
	}
	if len(st.records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, signature)
	}

	prev := st.records[len(st.records)-1]
	snap := Snapshot{
		Date:       date,
		ID:         prev.ID + 1,
		LastAction: &Action{Action: "no_trade"},
		Positions:  prev.clonePositions(),
	}
	if err := st.append(snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Registered reports whether the signature has a day-zero snapshot.
func (s *Store) Registered(signature string) (bool, error) {
	st := s.stream(signature)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.load(); err != nil {
		return false, err
	}
	return len(st.records) > 0, nil
}

// Summary describes a stream for reporting.
type Summary struct {
	Signature    string
	LatestDate   string
	TotalRecords int
	Cash         decimal.Decimal
	Positions    map[string]decimal.Decimal
}

func (s *Store) Summarize(signature string) (*Summary, error) {
	st := s.stream(signature)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.load(); err != nil {
		return nil, err
	}
	if len(st.records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, signature)
	}
	head := st.records[len(st.records)-1]
	return &Summary{
		Signature:    signature,
		LatestDate:   head.Date,
		TotalRecords: len(st.records),
		Cash:         head.Cash(),
		Positions:    head.clonePositions(),
	}, nil
}
