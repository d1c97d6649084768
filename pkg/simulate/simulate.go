package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/turnstile/pkg/cli"
)

// ErrInvalidConfig is returned by Run for unusable settings.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config describes one simulation run.
type Config struct {
	// Keys are the tenants to simulate. Empty means one anonymous tenant.
	Keys []string

	// Requests is how many concurrent requests each key fires.
	Requests int

	// Delay is slept by every request before it asks for admission.
	Delay time.Duration

	// Rate caps how fast requests are issued, across all keys, in requests
	// per second. Zero issues them as fast as possible.
	Rate float64

	// Burst is the pacing limiter's burst. Zero means 1.
	Burst int
}

// Result is the outcome of one simulated request.
type Result struct {
	Key     string        `json:"key" yaml:"key"`
	Seq     int           `json:"seq" yaml:"seq"`
	Status  int           `json:"status" yaml:"status"`
	Latency time.Duration `json:"latency" yaml:"latency"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Admitted reports whether the request got through.
func (r Result) Admitted() bool {
	return r.Status == http.StatusOK
}

// KeySummary totals the results of one key.
type KeySummary struct {
	Key      string `json:"key" yaml:"key"`
	Admitted int    `json:"admitted" yaml:"admitted"`
	Rejected int    `json:"rejected" yaml:"rejected"`
	Errors   int    `json:"errors" yaml:"errors"`
}

// Report is the outcome of a run.
type Report struct {
	// Results are in completion order.
	Results []Result `json:"results" yaml:"results"`

	// Summary is sorted by key.
	Summary []KeySummary `json:"summary" yaml:"summary"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Header implements cli.Table.
func (r *Report) Header() []string {
	return []string{"KEY", "ADMITTED", "REJECTED", "ERRORS"}
}

// Rows implements cli.Table.
func (r *Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Summary))
	for _, s := range r.Summary {
		rows = append(rows, []string{
			s.Key,
			strconv.Itoa(s.Admitted),
			strconv.Itoa(s.Rejected),
			strconv.Itoa(s.Errors),
		})
	}
	return rows
}

// ForKey returns the summary of key.
func (r *Report) ForKey(key string) (KeySummary, bool) {
	for _, s := range r.Summary {
		if s.Key == key {
			return s, true
		}
	}
	return KeySummary{}, false
}

// Expect checks that every key was admitted exactly admitted times.
func (r *Report) Expect(admitted int) error {
	var errs []error
	for _, s := range r.Summary {
		if s.Admitted != admitted {
			errs = append(errs, fmt.Errorf("key %q: admitted %d, expected %d", s.Key, s.Admitted, admitted))
		}
	}
	return errors.Join(errs...)
}

// Run fires cfg.Requests concurrent requests per key at target and waits
// for all of them. progress may be nil.
//
// A request that fails to get a decision is counted under Errors and does
// not stop the run. Cancelling ctx does.
func Run(ctx context.Context, cfg Config, target Target, progress cli.ProgressReporter) (*Report, error) {
	if cfg.Requests <= 0 {
		return nil, fmt.Errorf("%w: requests must be positive, got %d", ErrInvalidConfig, cfg.Requests)
	}
	if cfg.Rate < 0 {
		return nil, fmt.Errorf("%w: rate must not be negative, got %v", ErrInvalidConfig, cfg.Rate)
	}
	if progress == nil {
		progress = cli.NopProgress{}
	}

	keys := cfg.Keys
	if len(keys) == 0 {
		keys = []string{""}
	}

	var pacer *rate.Limiter
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		pacer = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}

	total := len(keys) * cfg.Requests
	results := make(chan Result, total)
	progress.Start(int64(total))
	start := time.Now()

	var wg sync.WaitGroup
	for _, key := range keys {
		for seq := 0; seq < cfg.Requests; seq++ {
			wg.Add(1)
			go func(key string, seq int) {
				defer wg.Done()
				res := fire(ctx, target, pacer, cfg.Delay, key, seq)
				progress.Observe(res.Admitted())
				results <- res
			}(key, seq)
		}
	}
	wg.Wait()
	close(results)
	progress.Finish()

	report := &Report{
		Results:  make([]Result, 0, total),
		Duration: time.Since(start),
	}
	byKey := make(map[string]*KeySummary, len(keys))
	for _, key := range keys {
		byKey[key] = &KeySummary{Key: key}
	}
	for res := range results {
		report.Results = append(report.Results, res)
		s := byKey[res.Key]
		switch {
		case res.Error != "":
			s.Errors++
		case res.Admitted():
			s.Admitted++
		case res.Status == http.StatusTooManyRequests:
			s.Rejected++
		default:
			s.Errors++
		}
	}
	for _, s := range byKey {
		report.Summary = append(report.Summary, *s)
	}
	sort.Slice(report.Summary, func(i, j int) bool {
		return report.Summary[i].Key < report.Summary[j].Key
	})

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// fire runs one simulated request.
func fire(ctx context.Context, target Target, pacer *rate.Limiter, delay time.Duration, key string, seq int) Result {
	res := Result{Key: key, Seq: seq}

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			res.Error = ctx.Err().Error()
			return res
		}
	}

	if pacer != nil {
		if err := pacer.Wait(ctx); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	start := time.Now()
	status, err := target.Admit(ctx, key)
	res.Latency = time.Since(start)
	res.Status = status
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
