package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/urlchecker/internal/domain"
)

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi sends to every notifier and returns all failures combined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}

// ThreatReport summarises results the reputation service flagged as
// malicious. ok is false when nothing was flagged.
func ThreatReport(results []domain.CheckResult) (title, text string, ok bool) {
	var b strings.Builder
	n := 0
	for _, r := range results {
		if !r.Flagged() {
			continue
		}
		n++
		v := r.Reputation.Verdict
		fmt.Fprintf(&b, "URL: %s\nMalicious: %d  Suspicious: %d\nReport: %s\n\n",
			r.URL, v.Malicious, v.Suspicious, v.ReportLink)
	}
	if n == 0 {
		return "", "", false
	}
	return fmt.Sprintf("🔴 %d malicious URL(s) checked", n), strings.TrimSpace(b.String()), true
}
