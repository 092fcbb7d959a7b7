// Package guardrails scans the optional free-text AAD fields (examType,
// resultShort, note) for accidental secret material before an envelope is
// emitted. These fields are the one place in the system where a
// human-authored string is bound into the AEAD computation but still
// visible in cleartext alongside the envelope — everything else is either
// structured identifiers or ciphertext.
package guardrails

import (
	"fmt"
	"math"
	"strings"

	"github.com/apscustody/labcustody/internal/envelope"
)

// Warning is one suspected secret-material detection.
type Warning struct {
	Field         string // "examType", "resultShort", or "note".
	DetectionType string // "high_entropy", "known_format", "length_anomaly".
	Message       string
}

// Result is the outcome of scanning one AAD.
type Result struct {
	Warnings []Warning
}

// HasWarnings reports whether any warnings were found.
func (r Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

var knownSecretPrefixes = []struct {
	prefix  string
	service string
}{
	{"AKIA", "AWS Access Key"},
	{"ASIA", "AWS Temporary Access Key"},
	{"eyJ", "JWT Token"},
	{"ghp_", "GitHub Personal Access Token"},
	{"github_pat_", "GitHub Fine-Grained PAT"},
	{"sk_live_", "Stripe Secret Key"},
	{"sk-", "OpenAI API Key"},
	{"xoxb-", "Slack Bot Token"},
	{"SG.", "SendGrid API Key"},
	{"-----BEGIN", "Private Key / Certificate"},
	{"AGE-SECRET-KEY-", "age Encryption Key"},
}

// Scan inspects aad's optional free-text fields for values that look like
// secret material rather than clinical free text.
func Scan(aad envelope.AAD) Result {
	var result Result

	for field, value := range aad.OptionalFields() {
		for _, kp := range knownSecretPrefixes {
			if strings.HasPrefix(value, kp.prefix) {
				result.Warnings = append(result.Warnings, Warning{
					Field:         field,
					DetectionType: "known_format",
					Message:       fmt.Sprintf("value matches known %s format (prefix: %s)", kp.service, kp.prefix),
				})
				break
			}
		}

		if entropy := shannonEntropy(value); entropy > 4.5 && len(value) > 16 {
			result.Warnings = append(result.Warnings, Warning{
				Field:         field,
				DetectionType: "high_entropy",
				Message:       fmt.Sprintf("value has high entropy (%.2f bits/char) — may be a secret", entropy),
			})
		}

		if len(value) > 64 && !strings.Contains(value, " ") {
			result.Warnings = append(result.Warnings, Warning{
				Field:         field,
				DetectionType: "length_anomaly",
				Message:       fmt.Sprintf("value is %d chars with no spaces — may be an encoded secret", len(value)),
			})
		}
	}

	return result
}

// shannonEntropy returns the Shannon entropy (bits per character) of s.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	length := float64(len([]rune(s)))
	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / length
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
