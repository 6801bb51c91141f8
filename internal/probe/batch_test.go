package probe

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/urlchecker/internal/domain"
)

// scriptedChecker answers per URL, sleeping where asked.
type scriptedChecker struct {
	delay map[string]time.Duration
	panic map[string]bool
}

func (s *scriptedChecker) Check(_ context.Context, raw string) domain.CheckResult {
	time.Sleep(s.delay[raw])
	if s.panic[raw] {
		panic("checker exploded")
	}
	code := 200
	return domain.CheckResult{URL: raw, StatusCode: &code}
}

func TestBatchRunner_PreservesOrder(t *testing.T) {
	urls := make([]string, 50)
	delay := map[string]time.Duration{}
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site%02d.example", i)
		// later inputs finish first
		delay[urls[i]] = time.Duration(50-i) * time.Millisecond
	}
	b := NewBatchRunner(zap.NewNop(), &scriptedChecker{delay: delay})

	out, err := b.CheckAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if len(out) != len(urls) {
		t.Fatalf("want %d results, got %d", len(urls), len(out))
	}
	for i := range urls {
		if out[i].URL != urls[i] {
			t.Fatalf("slot %d: want %s, got %s", i, urls[i], out[i].URL)
		}
	}
}

func TestBatchRunner_RunsConcurrently(t *testing.T) {
	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	delay := map[string]time.Duration{}
	for _, u := range urls {
		delay[u] = 150 * time.Millisecond
	}
	b := NewBatchRunner(zap.NewNop(), &scriptedChecker{delay: delay})

	start := time.Now()
	if _, err := b.CheckAll(context.Background(), urls); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if el := time.Since(start); el > 400*time.Millisecond {
		t.Fatalf("checks look sequential: %v", el)
	}
}

func TestBatchRunner_PanicTaintsOnlyItsSlot(t *testing.T) {
	urls := []string{"https://ok.example", "https://bad.example", "https://fine.example"}
	b := NewBatchRunner(zap.NewNop(), &scriptedChecker{panic: map[string]bool{"https://bad.example": true}})

	out, err := b.CheckAll(context.Background(), urls)
	if err == nil || len(multierr.Errors(err)) != 1 || !strings.Contains(err.Error(), "bad.example") {
		t.Fatalf("want one fault naming bad.example, got %v", err)
	}
	if out[1].URL != "https://bad.example" || out[1].Error != InternalError || out[1].StatusCode != nil {
		t.Fatalf("crashed slot wrong: %+v", out[1])
	}
	for _, i := range []int{0, 2} {
		if out[i].StatusCode == nil || out[i].Error != "" {
			t.Fatalf("slot %d tainted: %+v", i, out[i])
		}
	}
}

// A fast URL is not held back by a slow one that ends in a timeout.
func TestBatchRunner_SlowURLDoesNotCorruptFastOne(t *testing.T) {
	slow := &fakeFetcher{err: &TransportError{Code: CodeTimeout, Err: context.DeadlineExceeded}}
	fast := healthyFakes(200)
	router := routeFetcher{
		"https://slow.example": delayedFetcher{inner: slow, d: 200 * time.Millisecond},
		"https://fast.example": fast.http,
	}
	c := NewURLChecker(zap.NewNop(), router, fast.dns, fast.tls, fast.rep)
	b := NewBatchRunner(zap.NewNop(), c)

	out, err := b.CheckAll(context.Background(), []string{"https://slow.example", "https://fast.example"})
	if err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if out[0].Error != CodeTimeout || out[0].StatusCode != nil {
		t.Fatalf("slow slot wrong: %+v", out[0])
	}
	if out[1].Error != "" || out[1].StatusCode == nil || *out[1].StatusCode != 200 {
		t.Fatalf("fast slot wrong: %+v", out[1])
	}
}

type routeFetcher map[string]Fetcher

func (r routeFetcher) Fetch(ctx context.Context, target string) (HTTPResponse, error) {
	return r[target].Fetch(ctx, target)
}

type delayedFetcher struct {
	inner Fetcher
	d     time.Duration
}

func (d delayedFetcher) Fetch(ctx context.Context, target string) (HTTPResponse, error) {
	time.Sleep(d.d)
	return d.inner.Fetch(ctx, target)
}
