package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pkrishnath/AI-Trader/internal/ledger"
	"github.com/pkrishnath/AI-Trader/internal/market"
	"github.com/pkrishnath/AI-Trader/internal/search"
)

const testDate = "2025-10-13"

const testMerged = `{"Meta Data":{"2. Symbol":"AAPL"},"Time Series (Daily)":{"2025-10-13":{"1. buy price":"100.00","2. high":"105.00","3. low":"99.00","4. sell price":"104.00","5. volume":"1000000"}}}
`

type fakeSearcher struct {
	results []search.Result
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	return f.results, f.err
}

func testGateway(t *testing.T, searcher Searcher) (*Gateway, *ledger.Store) {
	t.Helper()
	dir := t.TempDir()

	pricePath := filepath.Join(dir, "merged.jsonl")
	if err := os.WriteFile(pricePath, []byte(testMerged), 0o644); err != nil {
		t.Fatalf("write prices: %v", err)
	}

	book := ledger.NewStore(dir, zap.NewNop())
	if _, err := book.Register("gpt-5", testDate, []string{"AAPL"}, decimal.NewFromInt(10000)); err != nil {
		t.Fatalf("register: %v", err)
	}

	gw := NewGateway(book, market.NewStore(pricePath), searcher, "gpt-5", testDate, zap.NewNop())
	return gw, book
}

func TestCatalogListsTools(t *testing.T) {
	gw, _ := testGateway(t, &fakeSearcher{})

	infos, err := gw.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	want := []string{"buy", "sell", "get_price", "search", "add", "multiply"}
	if len(infos) != len(want) {
		t.Fatalf("got %d tools, want %d", len(infos), len(want))
	}
	for i, info := range infos {
		if info.Name != want[i] {
			t.Fatalf("tool %d = %q, want %q", i, info.Name, want[i])
		}
	}
}

func TestCatalogOmitsSearchWithoutSearcher(t *testing.T) {
	gw, _ := testGateway(t, nil)

	infos, err := gw.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	for _, info := range infos {
		if info.Name == "search" {
			t.Fatal("search tool present without a searcher")
		}
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	gw, _ := testGateway(t, nil)

	_, err := gw.Invoke(context.Background(), "short_sell", "{}")
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err = %v, want ErrUnknownTool", err)
	}
}

func TestInvokeMalformedArguments(t *testing.T) {
	gw, _ := testGateway(t, nil)

	_, err := gw.Invoke(context.Background(), "buy", `{"symbol":`)
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("err = %v, want ErrInvalidArguments", err)
	}
}

func TestBuyUpdatesLedger(t *testing.T) {
	gw, book := testGateway(t, nil)

	out, err := gw.Invoke(context.Background(), "buy", `{"symbol":"AAPL","amount":10}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var result tradeOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != "executed" {
		t.Fatalf("status = %q (error: %s)", result.Status, result.Error)
	}
	if result.Price != "100" {
		t.Fatalf("price = %q, want buy at open", result.Price)
	}

	snap, err := book.Latest("gpt-5", testDate)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !snap.Cash().Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("cash = %s, want 9000", snap.Cash())
	}
	if !snap.Holding("AAPL").Equal(decimal.NewFromInt(10)) {
		t.Fatalf("AAPL = %s, want 10", snap.Holding("AAPL"))
	}
}

func TestSellUsesClosePrice(t *testing.T) {
	gw, book := testGateway(t, nil)

	if _, err := gw.Invoke(context.Background(), "buy", `{"symbol":"AAPL","amount":10}`); err != nil {
		t.Fatalf("buy: %v", err)
	}
	out, err := gw.Invoke(context.Background(), "sell", `{"symbol":"AAPL","amount":4}`)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	var result tradeOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != "executed" || result.Price != "104" {
		t.Fatalf("result = %+v, want sell at close", result)
	}

	snap, _ := book.Latest("gpt-5", testDate)
	// 10000 - 10*100 + 4*104
	if !snap.Cash().Equal(decimal.RequireFromString("9416")) {
		t.Fatalf("cash = %s, want 9416", snap.Cash())
	}
}

func TestOverdrawnBuyIsRejectedNotFatal(t *testing.T) {
	gw, book := testGateway(t, nil)

	out, err := gw.Invoke(context.Background(), "buy", `{"symbol":"AAPL","amount":500}`)
	if err != nil {
		t.Fatalf("Invoke should not fail for a domain rejection: %v", err)
	}
	var result tradeOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != "rejected" || result.Error == "" {
		t.Fatalf("result = %+v, want rejection with reason", result)
	}

	head, err := book.Head("gpt-5")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.ID != 0 {
		t.Fatalf("ledger advanced to id %d on a rejected trade", head.ID)
	}
}

func TestUnknownSymbolBuyRejected(t *testing.T) {
	gw, _ := testGateway(t, nil)

	out, err := gw.Invoke(context.Background(), "buy", `{"symbol":"ZZZZ","amount":1}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var result tradeOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != "rejected" {
		t.Fatalf("status = %q, want rejected", result.Status)
	}
}

func TestGetPriceDefaultsToSessionDate(t *testing.T) {
	gw, _ := testGateway(t, nil)

	out, err := gw.Invoke(context.Background(), "get_price", `{"symbol":"AAPL"}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var result priceOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Date != testDate || result.Open != "100" || result.Close != "104" {
		t.Fatalf("result = %+v", result)
	}
}

func TestSearchErrorsReturnAsPayload(t *testing.T) {
	gw, _ := testGateway(t, &fakeSearcher{err: errors.New("rate limited")})

	out, err := gw.Invoke(context.Background(), "search", `{"query":"nvidia"}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var result searchOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Error == "" {
		t.Fatal("expected error payload")
	}
}

func TestMathTools(t *testing.T) {
	gw, _ := testGateway(t, nil)

	out, err := gw.Invoke(context.Background(), "add", `{"a":2,"b":3.5}`)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var sum mathOutput
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Result != 5.5 {
		t.Fatalf("add = %v", sum.Result)
	}

	out, err = gw.Invoke(context.Background(), "multiply", `{"a":4,"b":2.5}`)
	if err != nil {
		t.Fatalf("multiply: %v", err)
	}
	var prod mathOutput
	if err := json.Unmarshal([]byte(out), &prod); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prod.Result != 10 {
		t.Fatalf("multiply = %v", prod.Result)
	}
}
