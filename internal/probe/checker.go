package probe

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/urlchecker/internal/domain"
)

// InternalError fills a field whose probe crashed instead of returning.
const InternalError = "internal-error"

// URLChecker runs every probe for one URL and merges the outcomes.
// Check never returns an error: every failure ends up as data in the result.
type URLChecker struct {
	HTTP       Fetcher
	DNS        IPResolver
	Certs      CertInspector
	Reputation ReputationLookup
	Logger     *zap.Logger
	Metrics    Recorder
}

func NewURLChecker(logger *zap.Logger, http Fetcher, dns IPResolver, certs CertInspector, rep ReputationLookup) *URLChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLChecker{
		HTTP:       http,
		DNS:        dns,
		Certs:      certs,
		Reputation: rep,
		Logger:     logger,
		Metrics:    nopRecorder{},
	}
}

func (c *URLChecker) Check(ctx context.Context, raw string) domain.CheckResult {
	start := time.Now()
	if !IsValidURL(raw) {
		c.Metrics.RecordCheck(ctx, OutcomeInvalid, time.Since(start))
		c.Logger.Debug("check_invalid_url", zap.String("url", raw))
		return domain.CheckResult{URL: raw, Error: InvalidURL}
	}
	u, _ := url.Parse(raw)
	host := u.Hostname()

	resp, err := c.HTTP.Fetch(ctx, raw)
	if err != nil {
		res := c.diagnose(ctx, raw, host)
		res.Error = failureCode(err)
		c.Metrics.RecordProbeFailure(ctx, ProbeHTTP)
		c.Metrics.RecordCheck(ctx, OutcomeTransportError, time.Since(start))
		c.Logger.Info("check_done",
			zap.String("url", raw),
			zap.String("error", res.Error),
			zap.NamedError("cause", err),
			zap.Bool("ip_resolved", res.IP != nil),
		)
		return res
	}

	var (
		ip  *string
		ssl *bool
		rep *domain.ReputationResult
	)
	fo := &fanOut{ctx: ctx, logger: c.Logger, metrics: c.Metrics}
	fo.Go(ProbeDNS, func() { ip = c.resolveIP(ctx, host) })
	fo.Go(ProbeReputation, func() { rep = c.lookupReputation(ctx, raw) })
	if u.Scheme == "https" {
		ssl = new(bool)
		fo.Go(ProbeTLS, func() { *ssl = c.certValid(ctx, host, tlsPort(u)) })
	}
	fo.Wait()
	if rep == nil {
		rep = &domain.ReputationResult{Error: InternalError}
	}

	status, elapsed := resp.StatusCode, resp.ElapsedMS
	headers := resp.Headers
	res := domain.CheckResult{
		URL:          raw,
		StatusCode:   &status,
		ResponseTime: &elapsed,
		SSLValid:     ssl,
		Redirect:     domain.IsRedirect(status),
		IP:           ip,
		Headers:      &headers,
		Reputation:   rep,
	}
	c.Metrics.RecordCheck(ctx, OutcomeOK, time.Since(start))
	c.Logger.Info("check_done",
		zap.String("url", raw),
		zap.Int("status", status),
		zap.Int64("response_time_ms", elapsed),
		zap.Bool("redirect", res.Redirect),
	)
	return res
}

// diagnose runs the probes that still mean something when the page could
// not be fetched. TLS is skipped.
func (c *URLChecker) diagnose(ctx context.Context, raw, host string) domain.CheckResult {
	var (
		ip  *string
		rep *domain.ReputationResult
	)
	fo := &fanOut{ctx: ctx, logger: c.Logger, metrics: c.Metrics}
	fo.Go(ProbeDNS, func() { ip = c.resolveIP(ctx, host) })
	fo.Go(ProbeReputation, func() { rep = c.lookupReputation(ctx, raw) })
	fo.Wait()
	if rep == nil {
		rep = &domain.ReputationResult{Error: InternalError}
	}
	return domain.CheckResult{URL: raw, IP: ip, Reputation: rep}
}

func (c *URLChecker) resolveIP(ctx context.Context, host string) *string {
	ip, err := c.DNS.Resolve(ctx, host)
	if err != nil {
		c.Metrics.RecordProbeFailure(ctx, ProbeDNS)
		c.Logger.Warn("dns_error", zap.String("host", host), zap.Error(err))
		return nil
	}
	return &ip
}

func (c *URLChecker) certValid(ctx context.Context, host string, port int) bool {
	st, err := c.Certs.Check(ctx, host, port)
	if err != nil {
		c.Metrics.RecordProbeFailure(ctx, ProbeTLS)
		c.Logger.Debug("tls_error", zap.String("host", host), zap.Int("port", port), zap.Error(err))
		return false
	}
	return st.Valid
}

func (c *URLChecker) lookupReputation(ctx context.Context, raw string) *domain.ReputationResult {
	r, err := c.Reputation.Lookup(ctx, raw)
	if err != nil {
		c.Metrics.RecordProbeFailure(ctx, ProbeReputation)
		// a missing key is reported once at startup, not per URL
		if !errors.Is(err, ErrMissingAPIKey) {
			c.Logger.Warn("reputation_error", zap.String("url", raw), zap.Error(err))
		}
		return &domain.ReputationResult{Error: err.Error()}
	}
	return &domain.ReputationResult{Verdict: &r}
}

func failureCode(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code
	}
	return err.Error()
}

// tlsPort is the URL's explicit port, else 443.
func tlsPort(u *url.URL) int {
	if p, err := strconv.Atoi(u.Port()); err == nil && p > 0 {
		return p
	}
	return 443
}
