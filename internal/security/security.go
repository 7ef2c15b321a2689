// Package security gates every outbound text and every proposed persona
// edit. Anything the generator produces is untrusted: prompt injection via
// feed content could try to exfiltrate credentials through our own posts.
package security

import (
	"log"
	"regexp"
	"strings"
)

// secretPattern pairs a compiled pattern with a loggable name so blocks can
// be audited without ever writing the matched secret anywhere.
type secretPattern struct {
	name string
	re   *regexp.Regexp
}

var secretPatterns = []secretPattern{
	// API keys (various formats)
	{"moltbook_key", regexp.MustCompile(`(?i)moltbook_sk_[A-Za-z0-9_-]{20,}`)},
	{"sk_token", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{"api_key_assignment", regexp.MustCompile(`(?i)api[_-]?key["\s:=]+[A-Za-z0-9_-]{20,}`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_-]{20,}`)},

	// Private keys (crypto)
	{"eth_private_key", regexp.MustCompile(`0x[a-fA-F0-9]{64}`)},
	{"bitcoin_wif", regexp.MustCompile(`[5KL][1-9A-HJ-NP-Za-km-z]{50,51}`)},
	{"pem_private_key", regexp.MustCompile(`(?i)-----BEGIN.*PRIVATE KEY-----`)},

	// Cloud keys
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws_secret", regexp.MustCompile(`(?i)aws[_-]?secret["\s:=]+[A-Za-z0-9/+=]{40}`)},

	// Generic secrets
	{"password_assignment", regexp.MustCompile(`(?i)password["\s:=]+\S{8,}`)},
	{"secret_assignment", regexp.MustCompile(`(?i)secret["\s:=]+[A-Za-z0-9_-]{16,}`)},
}

// allowedEditFiles are the only persona files the generator may modify.
var allowedEditFiles = map[string]bool{
	"persona/AGENT_BRIEF.md": true,
	"persona/STRATEGY.md":    true,
	"persona/knowledge.md":   true,
}

// ContainsSecret reports whether content matches any credential-shaped
// pattern, returning the pattern name (never the match).
func ContainsSecret(content string) (bool, string) {
	for _, p := range secretPatterns {
		if p.re.MatchString(content) {
			return true, p.name
		}
	}
	return false, ""
}

// Scan checks one outbound unit. A match blocks the whole unit: the
// returned text is empty and blocked is true. Partial redaction is not
// attempted because a pattern list can only catch shapes it knows about.
func Scan(content, actionType string) (string, bool) {
	found, name := ContainsSecret(content)
	if found {
		log.Printf("[security] blocked %s: matched secret pattern %q", actionType, name)
		return "", true
	}
	return content, false
}

// IsAuthorizedEditTarget reports whether a persona-edit path is on the
// allow-list. Paths with traversal sequences are rejected before the list
// is even consulted.
func IsAuthorizedEditTarget(path string) bool {
	normalized := strings.ReplaceAll(path, `\`, "/")
	normalized = strings.TrimPrefix(normalized, "./")

	if strings.Contains(normalized, "..") {
		return false
	}

	return allowedEditFiles[normalized]
}
