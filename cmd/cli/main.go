package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hamed0406/urlchecker/internal/domain"
)

// Usage: cli https://a.example https://b.example
// With no arguments, URLs are read from stdin, one per line.
func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}

	urls := os.Args[1:]
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "Enter URLs to check, one per line (Ctrl-D to finish):")
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if s := strings.TrimSpace(sc.Text()); s != "" {
				urls = append(urls, s)
			}
		}
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "No URLs given.")
		os.Exit(2)
	}

	body, _ := json.Marshal(map[string][]string{"urls": urls})
	req, _ := http.NewRequest(http.MethodPost, api+"/check-urls", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if k := os.Getenv("API_KEY"); k != "" {
		req.Header.Set("X-API-Key", k)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		fmt.Fprintf(os.Stderr, "API returned %s: %s\n", resp.Status, e.Error)
		os.Exit(1)
	}

	var out domain.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintln(os.Stderr, "Bad response:", err)
		os.Exit(1)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tSTATUS\tTIME\tSSL\tIP\tREPUTATION\tERROR")
	for _, r := range out.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.URL, status(r), responseTime(r), ssl(r), deref(r.IP), reputation(r), r.Error)
	}
	tw.Flush()
	fmt.Printf("\n%d URL(s) checked\n", out.Count)
}

func status(r domain.CheckResult) string {
	if r.StatusCode == nil {
		return "-"
	}
	if r.Redirect {
		return fmt.Sprintf("%d (redirect)", *r.StatusCode)
	}
	return fmt.Sprint(*r.StatusCode)
}

func responseTime(r domain.CheckResult) string {
	if r.ResponseTime == nil {
		return "-"
	}
	return fmt.Sprintf("%d ms", *r.ResponseTime)
}

func ssl(r domain.CheckResult) string {
	switch {
	case r.SSLValid == nil:
		return "-"
	case *r.SSLValid:
		return "valid"
	default:
		return "INVALID"
	}
}

func reputation(r domain.CheckResult) string {
	switch {
	case r.Reputation == nil:
		return "-"
	case r.Reputation.Verdict == nil:
		return "n/a"
	default:
		return fmt.Sprintf("%d malicious, %d suspicious", r.Reputation.Verdict.Malicious, r.Reputation.Verdict.Suspicious)
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
