package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "seconds", value: "30", want: 30 * time.Second, wantOK: true},
		{name: "zero seconds", value: "0", want: 0, wantOK: true},
		{name: "negative seconds", value: "-5", wantOK: false},
		{name: "http date", value: now.Add(10 * time.Second).Format(http.TimeFormat), want: 10 * time.Second, wantOK: true},
		{name: "empty", value: "", wantOK: false},
		{name: "garbage", value: "soon", wantOK: false},
		{name: "seconds above max", value: "3600", want: time.Minute, wantOK: true},
		{name: "max int64 seconds", value: "9223372036854775807", want: time.Minute, wantOK: true},
		{name: "seconds beyond int64", value: "99999999999999999999", want: time.Minute, wantOK: true},
		{name: "far future date", value: now.Add(24 * time.Hour).Format(http.TimeFormat), want: time.Minute, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now, time.Minute)
			if ok != tt.wantOK {
				t.Fatalf("parseRetryAfter(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestLimiter_NilIsUnlimited(t *testing.T) {
	var l *Limiter

	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v, want nil", err)
	}
	l.UpdateFromResponse(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"10"}})
	if got := l.PausedFor(); got != 0 {
		t.Errorf("PausedFor() = %v, want 0", got)
	}
}

func TestLimiter_UpdateFromResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		header    string
		wantPause bool
	}{
		{name: "429 with retry-after", status: http.StatusTooManyRequests, header: "5", wantPause: true},
		{name: "503 with retry-after", status: http.StatusServiceUnavailable, header: "5", wantPause: true},
		{name: "429 without header", status: http.StatusTooManyRequests, header: "", wantPause: false},
		{name: "500 with retry-after", status: http.StatusInternalServerError, header: "5", wantPause: false},
		{name: "200", status: http.StatusOK, header: "5", wantPause: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(Config{}, zerolog.Nop())

			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			l.UpdateFromResponse(tt.status, h)

			paused := l.PausedFor() > 0
			if paused != tt.wantPause {
				t.Errorf("paused = %v, want %v", paused, tt.wantPause)
			}
		})
	}
}

func TestLimiter_PauseCappedByMaxPause(t *testing.T) {
	l := New(Config{MaxPause: 2 * time.Second}, zerolog.Nop())

	l.UpdateFromResponse(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"3600"}})

	if got := l.PausedFor(); got > 2*time.Second {
		t.Errorf("PausedFor() = %v, want <= 2s", got)
	}
}

func TestLimiter_HugeRetryAfterDoesNotOverflow(t *testing.T) {
	l := New(Config{MaxPause: 2 * time.Second}, zerolog.Nop())

	l.UpdateFromResponse(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"9223372036854775807"}})

	got := l.PausedFor()
	if got <= 0 || got > 2*time.Second {
		t.Errorf("PausedFor() = %v, want in (0, 2s]", got)
	}
}

func TestLimiter_WaitHonorsCancellationDuringPause(t *testing.T) {
	l := New(Config{}, zerolog.Nop())
	l.UpdateFromResponse(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"30"}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestLimiter_SteadyRate(t *testing.T) {
	l := New(Config{RPS: 20, Burst: 1}, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	// Burst 1 at 20 rps: two waits of ~50ms after the first token.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 waits took %v, want >= 80ms", elapsed)
	}
}
