package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/hamed0406/urlchecker/internal/domain"
)

// Transport failure codes carried by TransportError.
const (
	CodeTimeout           = "timeout"
	CodeDNSFailure        = "dns-failure"
	CodeConnectionRefused = "connection-refused"
	CodeConnectionReset   = "connection-reset"
	CodeTLSFailure        = "tls-failure"
	CodeBadRequest        = "bad-request"
	CodeTransport         = "transport-error"
)

// TransportError is a failure below the HTTP layer. Any received status
// code, 4xx and 5xx included, is not a TransportError.
type TransportError struct {
	Code string
	Err  error
}

func (e *TransportError) Error() string { return e.Code + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// HTTPResponse is what a completed fetch observed.
type HTTPResponse struct {
	StatusCode int
	ElapsedMS  int64
	Headers    domain.Headers
}

type HTTPChecker struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPChecker returns a checker that never follows redirects, so a 3xx
// is reported as observed rather than chased.
func NewHTTPChecker(timeout time.Duration, userAgent string) *HTTPChecker {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: timeout,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &HTTPChecker{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		UserAgent: userAgent,
	}
}

func (h *HTTPChecker) Fetch(ctx context.Context, target string) (HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return HTTPResponse{}, &TransportError{Code: CodeBadRequest, Err: err}
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	start := time.Now()
	resp, err := h.Client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return HTTPResponse{}, &TransportError{Code: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()
	// drain a little so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return HTTPResponse{
		StatusCode: resp.StatusCode,
		ElapsedMS:  elapsed,
		Headers: domain.Headers{
			ContentType: resp.Header.Get("Content-Type"),
			Server:      resp.Header.Get("Server"),
		},
	}, nil
}

func classifyTransportError(err error) string {
	var (
		dnsErr    *net.DNSError
		netErr    net.Error
		verifyErr *tls.CertificateVerificationError
		recordErr tls.RecordHeaderError
		alertErr  tls.AlertError
		authErr   x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		certErr   x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &dnsErr):
		return CodeDNSFailure
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return CodeConnectionReset
	case errors.As(err, &verifyErr),
		errors.As(err, &recordErr),
		errors.As(err, &alertErr),
		errors.As(err, &authErr),
		errors.As(err, &hostErr),
		errors.As(err, &certErr):
		return CodeTLSFailure
	}
	return CodeTransport
}
