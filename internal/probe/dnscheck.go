package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Lookup failure classes.
const (
	DNSClassNXDOMAIN    = "NXDOMAIN"
	DNSClassNoAddress   = "NO_A_RECORD"
	DNSClassTemporary   = "SERVFAIL_or_TIMEOUT"
	DNSClassInvalidName = "INVALID_NAME"
)

// DNSError explains why a hostname did not resolve.
type DNSError struct {
	Host  string
	Class string
	Err   error
}

func (e *DNSError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dns %s: %s", e.Host, e.Class)
	}
	return fmt.Sprintf("dns %s: %s: %v", e.Host, e.Class, e.Err)
}

func (e *DNSError) Unwrap() error { return e.Err }

// LookupIPer is satisfied by *net.Resolver.
type LookupIPer interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

type DNSResolver struct {
	Resolver LookupIPer
	Timeout  time.Duration
}

func NewDNSResolver(timeout time.Duration) *DNSResolver {
	return &DNSResolver{Resolver: &net.Resolver{}, Timeout: timeout} // OS resolver
}

// Resolve does a single forward lookup and returns one address, IPv4 first.
// IP literals are returned as-is. Failures are not retried.
func (d *DNSResolver) Resolve(ctx context.Context, host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" || strings.Contains(host, "://") {
		return "", &DNSError{Host: host, Class: DNSClassInvalidName}
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	ips, err := d.Resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		class := DNSClassTemporary
		var de *net.DNSError
		if errors.As(err, &de) && de.IsNotFound {
			class = DNSClassNXDOMAIN
		}
		return "", &DNSError{Host: host, Class: class, Err: err}
	}
	if len(ips) == 0 {
		return "", &DNSError{Host: host, Class: DNSClassNoAddress}
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			return ip.String(), nil
		}
	}
	return ips[0].String(), nil
}
