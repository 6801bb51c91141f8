package domain

import "encoding/json"

// Headers carries the response headers the checker reports.
type Headers struct {
	ContentType string `json:"content_type"`
	Server      string `json:"server"`
}

// Reputation is a verdict from the reputation service.
type Reputation struct {
	Malicious  int            `json:"malicious"`
	Suspicious int            `json:"suspicious"`
	RawStats   map[string]int `json:"raw_stats"`
	ReportLink string         `json:"report_link"`
}

// ReputationResult is either a verdict or the reason there is none.
// It marshals as the verdict object or as {"error": "..."}.
type ReputationResult struct {
	Verdict *Reputation
	Error   string
}

func (r ReputationResult) MarshalJSON() ([]byte, error) {
	if r.Verdict == nil {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	return json.Marshal(r.Verdict)
}

func (r *ReputationResult) UnmarshalJSON(b []byte) error {
	var raw struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Error != nil {
		*r = ReputationResult{Error: *raw.Error}
		return nil
	}
	var v Reputation
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = ReputationResult{Verdict: &v}
	return nil
}

// CheckResult is the merged outcome of all probes for one input URL.
// Pointer fields are nil when the value is absent and serialise as null.
type CheckResult struct {
	URL          string            `json:"url"`
	StatusCode   *int              `json:"status_code"`
	ResponseTime *int64            `json:"response_time"` // ms
	SSLValid     *bool             `json:"ssl_valid"`
	Redirect     bool              `json:"redirect"`
	IP           *string           `json:"ip"`
	Headers      *Headers          `json:"headers,omitempty"`
	Reputation   *ReputationResult `json:"reputation"`
	Error        string            `json:"error,omitempty"`
}

// IsRedirect reports whether code is in [300,400).
func IsRedirect(code int) bool {
	return code >= 300 && code < 400
}

// Flagged reports whether the reputation verdict counts any malicious engine.
func (r CheckResult) Flagged() bool {
	return r.Reputation != nil && r.Reputation.Verdict != nil && r.Reputation.Verdict.Malicious > 0
}

// BatchResponse is what the API returns for a batch check.
type BatchResponse struct {
	Results []CheckResult `json:"results"`
	Count   int           `json:"count"`
}
