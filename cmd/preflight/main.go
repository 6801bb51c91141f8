// cmd/preflight/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/urlchecker/internal/config"
)

func main() {
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}

	failed := false
	for _, e := range multierr.Errors(cfg.Validate()) {
		if errors.Is(e, config.ErrMissingReputationKey) {
			warn(e.Error() + " — results will carry a reputation error.")
			continue
		}
		fmt.Fprintln(os.Stderr, "✖", e)
		failed = true
	}

	if strings.Contains(os.Getenv("API_KEYS"), " ") {
		warn("API_KEYS contains spaces; use comma-separated with no spaces, e.g. key1,key2")
	}
	if len(cfg.APIKeys) == 0 {
		warn("API_KEYS is empty — /check-urls is open to anyone who can reach it.")
	} else {
		ok(fmt.Sprintf("%d API key(s) configured", len(cfg.APIKeys)))
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty — CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	if len(cfg.MemcachedServers) == 0 {
		warn("MEMCACHED_SERVERS empty — every check spends reputation quota.")
	} else {
		ok("MEMCACHED_SERVERS=" + strings.Join(cfg.MemcachedServers, ","))
	}
	if cfg.SlackWebhook != "" {
		ok("Slack alerts enabled")
	}
	ok("API_ADDR=" + cfg.Addr)

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
