package ratelimit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWaitSpacesConsecutiveCalls(t *testing.T) {
	l := New("test", 50, zap.NewNop()) // 20ms spacing
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("expected ~20ms spacing, got %v", elapsed)
	}
}

func TestWaitReturnsImmediatelyWhenIdle(t *testing.T) {
	l := New("test", 10, zap.NewNop())
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	time.Sleep(120 * time.Millisecond)
	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("expected immediate return after idle period, waited %v", elapsed)
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	l := New("test", 1, zap.NewNop())
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected context error while rate limited")
	}
}

func TestDefaultsToOneRequestPerSecond(t *testing.T) {
	l := New("test", 0, zap.NewNop())
	if got := float64(l.lim.Limit()); got != 1 {
		t.Fatalf("expected default 1 req/s, got %v", got)
	}
}
