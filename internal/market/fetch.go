package market

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"go.uber.org/zap"
)

// Fetcher downloads daily bars from Yahoo Finance and folds them into
// the merged price file that Store reads.
type Fetcher struct {
	path string
	log  *zap.Logger
}

func NewFetcher(path string, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{path: path, log: log}
}

// FetchDaily pulls daily bars for every symbol over [start, end] and
// merges them into the price file. Symbols that fail to download are
// logged and skipped; the error count is returned alongside.
func (f *Fetcher) FetchDaily(symbols []string, start, end time.Time) (fetched, failed int, err error) {
	docs, err := readMerged(f.path)
	if err != nil {
		return 0, 0, err
	}

	for _, symbol := range symbols {
		series, ferr := fetchSymbol(symbol, start, end)
		if ferr != nil {
			f.log.Warn("price download failed",
				zap.String("symbol", symbol), zap.Error(ferr))
			failed++
			continue
		}
		if len(series) == 0 {
			f.log.Warn("no bars returned", zap.String("symbol", symbol))
			failed++
			continue
		}

		doc := docs[symbol]
		if doc == nil {
			doc = &mergedDoc{
				Meta:   map[string]string{metaSymbolKey: symbol},
				Series: make(map[string]map[string]string),
			}
			docs[symbol] = doc
		}
		for date, fields := range series {
			doc.Series[date] = fields
		}
		fetched++
		f.log.Info("prices merged",
			zap.String("symbol", symbol), zap.Int("bars", len(series)))
	}

	if fetched == 0 && failed > 0 {
		return fetched, failed, fmt.Errorf("all %d symbol downloads failed", failed)
	}
	if err := writeMerged(f.path, docs); err != nil {
		return fetched, failed, err
	}
	return fetched, failed, nil
}

func fetchSymbol(symbol string, start, end time.Time) (map[string]map[string]string, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)
	series := make(map[string]map[string]string)
	for iter.Next() {
		bar := iter.Bar()
		date := time.Unix(int64(bar.Timestamp), 0).UTC().Format("2006-01-02")
		series[date] = map[string]string{
			keyOpen:   bar.Open.String(),
			keyHigh:   bar.High.String(),
			keyLow:    bar.Low.String(),
			keyClose:  bar.Close.String(),
			keyVolume: strconv.Itoa(bar.Volume),
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("chart query for %s: %w", symbol, err)
	}
	return series, nil
}

func readMerged(path string) (map[string]*mergedDoc, error) {
	docs := make(map[string]*mergedDoc)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return docs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open price data: %w", err)
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
			return nil, fmt.Errorf("parse price record: %w", err)
		}
		if symbol := doc.Meta[metaSymbolKey]; symbol != "" {
			d := doc
			docs[symbol] = &d
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan price data: %w", err)
	}
	return docs, nil
}

func writeMerged(path string, docs map[string]*mergedDoc) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create price data dir: %w", err)
	}

	symbols := make([]string, 0, len(docs))
	for s := range docs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write price data: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, s := range symbols {
		if err := enc.Encode(docs[s]); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encode price record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush price data: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close price data: %w", err)
	}
	return os.Rename(tmp, path)
}
