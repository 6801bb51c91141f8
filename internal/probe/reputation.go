package probe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hamed0406/urlchecker/internal/domain"
)

var ErrMissingAPIKey = errors.New("reputation service not configured")

const defaultVirusTotalURL = "https://www.virustotal.com"

// ReputationCache stores verdicts between requests. Misses and cache
// failures both report ok=false.
type ReputationCache interface {
	Get(target string) (domain.Reputation, bool)
	Set(target string, r domain.Reputation)
}

// ReputationProbe queries the VirusTotal v3 URL report endpoint.
type ReputationProbe struct {
	APIKey     string
	BaseURL    string // API host, overridable for tests
	GUIBaseURL string // host used in report links
	Client     *http.Client
	Limiter    *rate.Limiter // optional outbound pacing
	Cache      ReputationCache
}

func NewReputationProbe(apiKey, baseURL string, timeout time.Duration) *ReputationProbe {
	if baseURL == "" {
		baseURL = defaultVirusTotalURL
	}
	return &ReputationProbe{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		GUIBaseURL: defaultVirusTotalURL,
		Client:     &http.Client{Timeout: timeout},
	}
}

// WithRateLimit paces outbound lookups to rpm requests per minute.
func (p *ReputationProbe) WithRateLimit(rpm int) *ReputationProbe {
	if rpm > 0 {
		p.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
	}
	return p
}

// URLIdentifier is the unpadded URL-safe base64 form VirusTotal uses as
// the id of a URL.
func URLIdentifier(target string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(target))
}

type vtURLReport struct {
	Data *struct {
		Attributes struct {
			LastAnalysisStats map[string]int `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

type vtError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *ReputationProbe) Lookup(ctx context.Context, target string) (domain.Reputation, error) {
	if p.APIKey == "" {
		return domain.Reputation{}, ErrMissingAPIKey
	}
	if p.Cache != nil {
		if r, ok := p.Cache.Get(target); ok {
			return r, nil
		}
	}
	if p.Client.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Client.Timeout)
		defer cancel()
	}
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return domain.Reputation{}, fmt.Errorf("reputation rate limit: %w", err)
		}
	}

	id := URLIdentifier(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/v3/urls/"+id, nil)
	if err != nil {
		return domain.Reputation{}, err
	}
	req.Header.Set("x-apikey", p.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return domain.Reputation{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.Reputation{}, fmt.Errorf("read reputation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var ve vtError
		if json.Unmarshal(body, &ve) == nil && ve.Error.Code != "" {
			return domain.Reputation{}, fmt.Errorf("virustotal %d %s: %s", resp.StatusCode, ve.Error.Code, ve.Error.Message)
		}
		return domain.Reputation{}, fmt.Errorf("virustotal status %d", resp.StatusCode)
	}

	var report vtURLReport
	if err := json.Unmarshal(body, &report); err != nil {
		return domain.Reputation{}, fmt.Errorf("decode reputation response: %w", err)
	}
	if report.Data == nil || report.Data.Attributes.LastAnalysisStats == nil {
		return domain.Reputation{}, errors.New("malformed reputation response: no last_analysis_stats")
	}

	stats := report.Data.Attributes.LastAnalysisStats
	r := domain.Reputation{
		Malicious:  stats["malicious"],
		Suspicious: stats["suspicious"],
		RawStats:   stats,
		ReportLink: p.GUIBaseURL + "/gui/url/" + id + "/detection",
	}
	if p.Cache != nil {
		p.Cache.Set(target, r)
	}
	return r, nil
}
