package security

import "strings"

type threatPattern struct {
	name     string
	severity string
	match    func(report CSPReport) bool
}

// Severity ranking, highest first, used when several patterns match.
var severityRank = map[string]int{
	SeverityCritical: 3,
	SeverityHigh:     2,
	SeverityMedium:   1,
	SeverityLow:      0,
}

// Domains seen exfiltrating data or serving injected scripts in the wild.
var suspiciousDomains = []string{
	"evil.com",
	"attacker.net",
	"webhook.site",
	"requestbin.com",
	"pipedream.net",
	"ngrok.io",
	"interact.sh",
	"oastify.com",
	"burpcollaborator.net",
}

// Typosquatted lookalikes of CDNs the app actually loads from.
var typosquatCDNs = []string{
	"cdn.jsdelivr.not",
	"cdnjs.cloudfiare.com",
	"unpkg.org",
	"ajax.googieapis.com",
	"fonts.gooogleapis.com",
}

var threatPatterns = []threatPattern{
	{
		name:     "script_injection",
		severity: SeverityCritical,
		match: func(r CSPReport) bool {
			if !strings.HasPrefix(r.EffectiveDirectiveOrViolated(), "script-src") {
				return false
			}
			return r.BlockedURI != "" && r.BlockedURI != "inline" && r.BlockedURI != "eval" && !strings.HasPrefix(r.BlockedURI, "self")
		},
	},
	{
		name:     "data_exfiltration",
		severity: SeverityCritical,
		match: func(r CSPReport) bool {
			host := strings.ToLower(r.BlockedURI)
			for _, domain := range suspiciousDomains {
				if strings.Contains(host, domain) {
					return true
				}
			}
			return false
		},
	},
	{
		name:     "typosquat_cdn",
		severity: SeverityHigh,
		match: func(r CSPReport) bool {
			host := strings.ToLower(r.BlockedURI)
			for _, domain := range typosquatCDNs {
				if strings.Contains(host, domain) {
					return true
				}
			}
			return false
		},
	},
	{
		name:     "inline_script",
		severity: SeverityMedium,
		match: func(r CSPReport) bool {
			return (r.BlockedURI == "inline" || r.BlockedURI == "") &&
				strings.HasPrefix(r.EffectiveDirectiveOrViolated(), "script-src")
		},
	},
	{
		name:     "eval_usage",
		severity: SeverityMedium,
		match: func(r CSPReport) bool {
			return r.BlockedURI == "eval" || strings.Contains(r.ScriptSample, "eval(")
		},
	},
	{
		name:     "data_uri",
		severity: SeverityMedium,
		match: func(r CSPReport) bool {
			return strings.HasPrefix(r.BlockedURI, "data:")
		},
	},
}

// EffectiveDirectiveOrViolated prefers the effective directive, falling back
// to the violated one. Older browsers only send the latter.
func (r CSPReport) EffectiveDirectiveOrViolated() string {
	if r.EffectiveDirective != "" {
		return r.EffectiveDirective
	}
	return r.ViolatedDirective
}

// Classify matches a report against the threat patterns and returns the
// matched pattern names plus the highest severity. Reports matching nothing
// are low severity noise (browser extensions, stale caches).
func Classify(report CSPReport) (patterns []string, severity string) {
	severity = SeverityLow
	for _, p := range threatPatterns {
		if p.match(report) {
			patterns = append(patterns, p.name)
			if severityRank[p.severity] > severityRank[severity] {
				severity = p.severity
			}
		}
	}
	return patterns, severity
}
