package secops

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Finding is one potential secret located in a file.
type Finding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Redacted string `json:"redacted"`
}

// SecretRule is a named detection pattern.
type SecretRule struct {
	Name     string
	Severity string
	Pattern  *regexp.Regexp
}

// DefaultSecretRules cover the credential shapes that have leaked into this
// codebase's history or commonly leak in web stacks.
var DefaultSecretRules = []SecretRule{
	{
		Name:     "aws_access_key",
		Severity: "critical",
		Pattern:  regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`),
	},
	{
		Name:     "private_key_block",
		Severity: "critical",
		Pattern:  regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |PGP )?PRIVATE KEY( BLOCK)?-----`),
	},
	{
		Name:     "payment_live_key",
		Severity: "critical",
		Pattern:  regexp.MustCompile(`\b[sr]k_live_[0-9a-zA-Z]{20,}\b`),
	},
	{
		Name:     "payment_test_key",
		Severity: "medium",
		Pattern:  regexp.MustCompile(`\b[sr]k_test_[0-9a-zA-Z]{20,}\b`),
	},
	{
		Name:     "jwt_token",
		Severity: "high",
		Pattern:  regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`),
	},
	{
		Name:     "connection_string_password",
		Severity: "high",
		Pattern:  regexp.MustCompile(`\b(postgres(ql)?|mysql|mongodb(\+srv)?|redis|amqp)://[^\s:/@]+:[^\s@]+@`),
	},
	{
		Name:     "generic_api_key",
		Severity: "medium",
		Pattern:  regexp.MustCompile(`(?i)\b(api[_-]?key|secret[_-]?key|auth[_-]?token|access[_-]?token)["']?\s*[:=]\s*["'][A-Za-z0-9_\-]{16,}["']`),
	},
}

var skippedDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	"dist":         true,
	".next":        true,
	"testdata":     true,
}

var skippedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".woff": true,
	".woff2": true, ".ttf": true, ".so": true, ".exe": true, ".bin": true,
}

const maxScanFileSize = 2 << 20

// SecretScanner walks a directory tree applying the rules.
type SecretScanner struct {
	rules []SecretRule
}

// NewSecretScanner constructs a scanner. A nil rule set means the defaults.
func NewSecretScanner(rules []SecretRule) *SecretScanner {
	if rules == nil {
		rules = DefaultSecretRules
	}
	return &SecretScanner{rules: rules}
}

// Scan walks root and returns findings with redacted match text. Unreadable
// files are skipped, not fatal.
func (s *SecretScanner) Scan(root string) ([]Finding, error) {
	var findings []Finding
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if skippedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Size() > maxScanFileSize {
			return nil
		}
		fileFindings, err := s.scanFile(root, path)
		if err != nil {
			return nil
		}
		findings = append(findings, fileFindings...)
		return nil
	})
	return findings, err
}

func (s *SecretScanner) scanFile(root, path string) ([]Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	var findings []Finding
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, rule := range s.rules {
			match := rule.Pattern.FindString(line)
			if match == "" {
				continue
			}
			findings = append(findings, Finding{
				Rule:     rule.Name,
				Severity: rule.Severity,
				File:     rel,
				Line:     lineNo,
				Redacted: Redact(match),
			})
		}
	}
	return findings, scanner.Err()
}

// Redact keeps just enough of a match to identify the credential type while
// making the value useless.
func Redact(match string) string {
	if len(match) <= 8 {
		return strings.Repeat("*", len(match))
	}
	return fmt.Sprintf("%s...%s", match[:4], strings.Repeat("*", 4))
}

func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	return bytes.ContainsRune(probe, 0)
}
