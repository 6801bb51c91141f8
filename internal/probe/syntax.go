package probe

import (
	"net/url"
	"strings"
)

// InvalidURL is the error reported for input that fails IsValidURL.
const InvalidURL = "invalid URL"

// IsValidURL reports whether s is an absolute http(s) URL with a host.
// It never touches the network.
func IsValidURL(s string) bool {
	if strings.TrimSpace(s) != s || s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}
