package market

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

const sampleMerged = `{"Meta Data":{"2. Symbol":"AAPL"},"Time Series (Daily)":{"2025-10-13":{"1. buy price":"255.40","2. high":"257.10","3. low":"253.90","4. sell price":"256.48","5. volume":"41234500"},"2025-10-14":{"1. buy price":"256.50","2. high":"258.00","3. low":"255.00","4. sell price":"257.20","5. volume":"39881200"}}}
{"Meta Data":{"2. Symbol":"MSFT"},"Time Series (Daily)":{"2025-10-13":{"1. buy price":"511.00","2. high":"514.30","3. low":"509.70","4. sell price":"513.57","5. volume":"18220000"}}}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "merged.jsonl")
	if err := os.WriteFile(path, []byte(sampleMerged), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestPriceLookup(t *testing.T) {
	s := NewStore(writeSample(t))

	bar, err := s.Price("AAPL", "2025-10-13")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if want := decimal.RequireFromString("255.40"); !bar.Open.Equal(want) {
		t.Fatalf("open = %s, want %s", bar.Open, want)
	}
	if want := decimal.RequireFromString("256.48"); !bar.Close.Equal(want) {
		t.Fatalf("close = %s, want %s", bar.Close, want)
	}
	if bar.Volume != 41234500 {
		t.Fatalf("volume = %d", bar.Volume)
	}
}

func TestPriceUnknownSymbol(t *testing.T) {
	s := NewStore(writeSample(t))

	if _, err := s.Price("ZZZZ", "2025-10-13"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPriceMissingDate(t *testing.T) {
	s := NewStore(writeSample(t))

	_, err := s.Price("MSFT", "2025-10-14")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPriceRejectsBadDate(t *testing.T) {
	s := NewStore(writeSample(t))

	if _, err := s.Price("AAPL", "10/13/2025"); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestOpenPricesSkipsMissing(t *testing.T) {
	s := NewStore(writeSample(t))

	prices, err := s.OpenPrices("2025-10-14", []string{"AAPL", "MSFT", "ZZZZ"})
	if err != nil {
		t.Fatalf("OpenPrices: %v", err)
	}
	if len(prices) != 1 {
		t.Fatalf("got %d prices, want 1", len(prices))
	}
	if want := decimal.RequireFromString("256.50"); !prices["AAPL"].Equal(want) {
		t.Fatalf("AAPL open = %s, want %s", prices["AAPL"], want)
	}
}

func TestMissingFileIsEmptyNotError(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent.jsonl"))

	if _, err := s.Price("AAPL", "2025-10-13"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReloadPicksUpNewData(t *testing.T) {
	path := writeSample(t)
	s := NewStore(path)

	if _, err := s.Price("AAPL", "2025-10-13"); err != nil {
		t.Fatalf("Price: %v", err)
	}

	extra := `{"Meta Data":{"2. Symbol":"NVDA"},"Time Series (Daily)":{"2025-10-13":{"1. buy price":"182.00","2. high":"184.50","3. low":"181.10","4. sell price":"183.20","5. volume":"50100300"}}}` + "\n"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString(extra); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	if _, err := s.Price("NVDA", "2025-10-13"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err before reload = %v, want ErrNotFound", err)
	}
	s.Reload()
	bar, err := s.Price("NVDA", "2025-10-13")
	if err != nil {
		t.Fatalf("Price after reload: %v", err)
	}
	if want := decimal.RequireFromString("183.20"); !bar.Close.Equal(want) {
		t.Fatalf("close = %s, want %s", bar.Close, want)
	}
}

func TestMergedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged.jsonl")
	docs := map[string]*mergedDoc{
		"AAPL": {
			Meta: map[string]string{metaSymbolKey: "AAPL"},
			Series: map[string]map[string]string{
				"2025-10-13": {
					keyOpen: "255.40", keyHigh: "257.10", keyLow: "253.90",
					keyClose: "256.48", keyVolume: "41234500",
				},
			},
		},
	}
	if err := writeMerged(path, docs); err != nil {
		t.Fatalf("writeMerged: %v", err)
	}

	got, err := readMerged(path)
	if err != nil {
		t.Fatalf("readMerged: %v", err)
	}
	if got["AAPL"] == nil {
		t.Fatal("AAPL missing after round trip")
	}
	if got["AAPL"].Series["2025-10-13"][keyClose] != "256.48" {
		t.Fatalf("close = %q", got["AAPL"].Series["2025-10-13"][keyClose])
	}

	s := NewStore(path)
	if _, err := s.Price("AAPL", "2025-10-13"); err != nil {
		t.Fatalf("store read of written file: %v", err)
	}
}
