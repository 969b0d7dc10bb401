package security

import "time"

// Severity levels assigned to CSP violation reports.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// CSPReportPayload is the browser's report envelope.
type CSPReportPayload struct {
	Report CSPReport `json:"csp-report"`
}

// CSPReport is one content-security-policy violation as sent by the browser.
type CSPReport struct {
	DocumentURI        string `json:"document-uri"`
	Referrer           string `json:"referrer"`
	ViolatedDirective  string `json:"violated-directive"`
	EffectiveDirective string `json:"effective-directive"`
	OriginalPolicy     string `json:"original-policy"`
	BlockedURI         string `json:"blocked-uri"`
	SourceFile         string `json:"source-file"`
	LineNumber         int    `json:"line-number"`
	ColumnNumber       int    `json:"column-number"`
	ScriptSample       string `json:"script-sample"`
	Disposition        string `json:"disposition"`
	StatusCode         int    `json:"status-code"`
}

// StoredReport is a persisted, classified violation.
type StoredReport struct {
	ID                int64     `json:"id"`
	DocumentURI       string    `json:"document_uri"`
	ViolatedDirective string    `json:"violated_directive"`
	BlockedURI        string    `json:"blocked_uri"`
	SourceFile        string    `json:"source_file,omitempty"`
	ScriptSample      string    `json:"script_sample,omitempty"`
	Severity          string    `json:"severity"`
	ThreatPatterns    []string  `json:"threat_patterns,omitempty"`
	ClientIP          string    `json:"client_ip"`
	UserAgent         string    `json:"user_agent,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}
