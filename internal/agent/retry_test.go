package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsWithinBudget(t *testing.T) {
	p := NewRetryPolicy(3, 10*time.Millisecond)
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	var calls int
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %v, want %v (doubling backoff)", i, delays[i], want[i])
		}
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond)
	p.sleep = func(context.Context, time.Duration) error { return nil }

	var calls int
	wantErr := errors.New("rate limit exceeded")
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	p := NewRetryPolicy(5, time.Millisecond)
	p.sleep = func(context.Context, time.Duration) error {
		t.Fatal("should not sleep for a permanent error")
		return nil
	}

	var calls int
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("400 invalid request body")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	p := NewRetryPolicy(5, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout waiting for response")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryBackoffInterruptedByCancellation(t *testing.T) {
	p := NewRetryPolicy(3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	start := time.Now()
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("503 service unavailable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("backoff did not unblock on cancel, took %v", elapsed)
	}
}

func TestTransientClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("429 too many requests"), true},
		{errors.New("rate limit exceeded, retry later"), true},
		{errors.New("502 bad gateway"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{errors.New("401 unauthorized"), false},
		{errors.New("model not found"), false},
	}
	for _, tc := range cases {
		if got := transient(tc.err); got != tc.want {
			t.Errorf("transient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
