package landscape

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedCompleter struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var out string
	if i < len(s.responses) {
		out = s.responses[i]
	}
	return out, err
}

func TestPacedCompleterMinDelayAfterEveryCall(t *testing.T) {
	inner := &scriptedCompleter{responses: []string{"ok"}}
	var slept []time.Duration
	p := &pacedCompleter{
		inner:    inner,
		minDelay: 2 * time.Second,
		cooldown: 30 * time.Second,
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	out, err := p.Complete(context.Background(), "prompt")
	if err != nil || out != "ok" {
		t.Fatalf("unexpected result: %q, %v", out, err)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("expected one 2s post-call delay, got %v", slept)
	}
}

func TestPacedCompleterRateLimitRetriesOnce(t *testing.T) {
	inner := &scriptedCompleter{
		responses: []string{"", "recovered"},
		errs:      []error{errors.New("429 rate_limit_exceeded"), nil},
	}
	var slept []time.Duration
	p := &pacedCompleter{
		inner:    inner,
		minDelay: 2 * time.Second,
		cooldown: 30 * time.Second,
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	out, err := p.Complete(context.Background(), "prompt")
	if err != nil || out != "recovered" {
		t.Fatalf("retry did not recover: %q, %v", out, err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", inner.calls)
	}
	if len(slept) != 2 || slept[0] != 30*time.Second {
		t.Fatalf("expected cooldown then min delay, got %v", slept)
	}
}

func TestPacedCompleterRateLimitFailsAfterSingleRetry(t *testing.T) {
	rl := errors.New("429 too many requests")
	inner := &scriptedCompleter{errs: []error{rl, rl, rl}}
	p := &pacedCompleter{
		inner:    inner,
		minDelay: time.Millisecond,
		cooldown: time.Millisecond,
		sleep:    func(context.Context, time.Duration) error { return nil },
	}
	if _, err := p.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error after failed retry")
	}
	if inner.calls != 2 {
		t.Fatalf("must retry exactly once, got %d calls", inner.calls)
	}
}

func TestPacedCompleterNonRateLimitNoRetry(t *testing.T) {
	inner := &scriptedCompleter{errs: []error{errors.New("boom")}}
	p := &pacedCompleter{
		inner:    inner,
		minDelay: time.Millisecond,
		cooldown: time.Millisecond,
		sleep:    func(context.Context, time.Duration) error { return nil },
	}
	if _, err := p.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error to propagate")
	}
	if inner.calls != 1 {
		t.Fatalf("non-rate-limit errors must not retry, got %d calls", inner.calls)
	}
}

func TestIsRateLimited(t *testing.T) {
	cases := []struct {
		err  string
		want bool
	}{
		{"status 429", true},
		{"rate_limit_exceeded: slow down", true},
		{"Rate Limit reached", true},
		{"connection refused", false},
		{"500 internal server error", false},
	}
	for _, tc := range cases {
		if got := isRateLimited(errors.New(tc.err)); got != tc.want {
			t.Errorf("isRateLimited(%q) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
