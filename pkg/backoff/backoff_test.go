package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	cbackoff "github.com/cenkalti/backoff"
)

func TestConstant(t *testing.T) {
	b := Constant(time.Second).NewBackOff()

	for i := 0; i < 5; i++ {
		if got := Next(b); got != time.Second {
			t.Errorf("Next() #%d = %v, want 1s", i, got)
		}
	}
}

func TestConstant_Zero(t *testing.T) {
	b := Constant(0).NewBackOff()

	if got := Next(b); got != 0 {
		t.Errorf("Next() = %v, want 0", got)
	}
}

func TestExponential(t *testing.T) {
	b := Exponential(100*time.Millisecond, 500*time.Millisecond, 2).NewBackOff()

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	for i, w := range want {
		if got := Next(b); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestExponential_FreshSchedulePerCall(t *testing.T) {
	p := Exponential(100*time.Millisecond, time.Second, 2)

	first := p.NewBackOff()
	Next(first)
	Next(first)

	second := p.NewBackOff()
	if got := Next(second); got != 100*time.Millisecond {
		t.Errorf("new schedule started at %v, want 100ms", got)
	}
}

func TestJittered_StaysWithinBounds(t *testing.T) {
	b := Jittered(time.Second, time.Second, 1, 0.5).NewBackOff()

	for i := 0; i < 50; i++ {
		got := Next(b)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("Next() = %v, want within [500ms, 1.5s]", got)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		first   time.Duration
		wantErr bool
	}{
		{
			name:  "empty kind is constant",
			cfg:   Config{Interval: time.Second},
			first: time.Second,
		},
		{
			name:  "constant",
			cfg:   Config{Kind: KindConstant, Interval: 3 * time.Second},
			first: 3 * time.Second,
		},
		{
			name:  "exponential",
			cfg:   Config{Kind: "Exponential", Interval: time.Second, Max: 10 * time.Second, Multiplier: 2},
			first: time.Second,
		},
		{
			name:    "unknown kind",
			cfg:     Config{Kind: "fibonacci", Interval: time.Second},
			wantErr: true,
		},
		{
			name:    "negative interval",
			cfg:     Config{Interval: -time.Second},
			wantErr: true,
		},
		{
			name:    "jitter out of range",
			cfg:     Config{Kind: KindJittered, Interval: time.Second, Jitter: 2},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := Next(p.NewBackOff()); got != tt.first {
				t.Errorf("first wait = %v, want %v", got, tt.first)
			}
		})
	}
}

func TestNext_StopMapsToZero(t *testing.T) {
	if got := Next(&cbackoff.StopBackOff{}); got != 0 {
		t.Errorf("Next(StopBackOff) = %v, want 0", got)
	}
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancellation")
	}
}

func TestSleep_Elapses(t *testing.T) {
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v, want nil", err)
	}
}
