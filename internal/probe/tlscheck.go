package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var ErrNoPeerCertificate = errors.New("peer presented no certificate")

// CertStatus describes the leaf certificate a server presented.
type CertStatus struct {
	NotAfter time.Time
	Valid    bool // NotAfter set and in the future
}

// CertProbe inspects certificate expiry. It does not verify the chain:
// self-signed and incomplete chains still report their expiry.
type CertProbe struct {
	Timeout time.Duration
	Now     func() time.Time
}

func NewCertProbe(timeout time.Duration) *CertProbe {
	return &CertProbe{Timeout: timeout, Now: time.Now}
}

// Check dials host:port, completes a handshake and reads the leaf
// certificate. Timeout bounds connect and handshake together.
func (p *CertProbe) Check(ctx context.Context, host string, port int) (CertStatus, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, // #nosec G402 -- expiry only
		},
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return CertStatus{}, fmt.Errorf("tls dial %s: %w", addr, err)
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return CertStatus{}, ErrNoPeerCertificate
	}
	notAfter := certs[0].NotAfter
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return CertStatus{
		NotAfter: notAfter,
		Valid:    !notAfter.IsZero() && notAfter.After(now()),
	}, nil
}
