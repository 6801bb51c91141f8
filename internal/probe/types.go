package probe

import (
	"context"
	"time"

	"github.com/hamed0406/urlchecker/internal/domain"
)

// Fetcher performs the main HTTP probe.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (HTTPResponse, error)
}

// IPResolver turns a hostname into a single address.
type IPResolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// CertInspector reports on the certificate a TLS endpoint presents.
type CertInspector interface {
	Check(ctx context.Context, host string, port int) (CertStatus, error)
}

// ReputationLookup classifies a URL with a third-party threat service.
type ReputationLookup interface {
	Lookup(ctx context.Context, target string) (domain.Reputation, error)
}

// Recorder receives per-check measurements. telemetry.Metrics implements it.
type Recorder interface {
	RecordCheck(ctx context.Context, outcome string, elapsed time.Duration)
	RecordProbeFailure(ctx context.Context, probe string)
}

// Check outcomes passed to Recorder.RecordCheck.
const (
	OutcomeOK             = "ok"
	OutcomeInvalid        = "invalid"
	OutcomeTransportError = "transport_error"
)

// Probe names passed to Recorder.RecordProbeFailure.
const (
	ProbeHTTP       = "http"
	ProbeDNS        = "dns"
	ProbeTLS        = "tls"
	ProbeReputation = "reputation"
)

type nopRecorder struct{}

func (nopRecorder) RecordCheck(context.Context, string, time.Duration) {}
func (nopRecorder) RecordProbeFailure(context.Context, string)         {}
