package privacy

import (
	"regexp"
	"strings"
)

// Scanner detects PII-like patterns in outbound text. It reports, it does not
// rewrite: lab values that are kept verbatim may legitimately look like
// identifiers.
type Scanner struct {
	emailPattern      *regexp.Regexp
	phonePattern      *regexp.Regexp
	nhsPattern        *regexp.Regexp
	nationalIDPattern *regexp.Regexp
}

// NewScanner compiles the detection patterns.
func NewScanner() *Scanner {
	return &Scanner{
		emailPattern: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),

		// UK mobile and landline: +44 or 0 prefix
		phonePattern: regexp.MustCompile(`(?:\+44\s?|\b0)(?:\d{2,4}[\s\-]?\d{3}[\s\-]?\d{3,4})\b`),

		// NHS number: 10 digits, usually grouped 3-3-4
		nhsPattern: regexp.MustCompile(`\b\d{3}[\s\-]\d{3}[\s\-]\d{4}\b|\b\d{10}\b`),

		// Long bare digit runs such as national identifiers
		nationalIDPattern: regexp.MustCompile(`\b\d{11,13}\b`),
	}
}

// Scan returns every finding in content, masked.
func (s *Scanner) Scan(content string) []Finding {
	var findings []Finding

	for _, match := range s.emailPattern.FindAllString(content, -1) {
		findings = append(findings, Finding{Field: PIIFieldEmail, MaskedValue: MaskEmail(match)})
	}
	for _, match := range s.phonePattern.FindAllString(content, -1) {
		findings = append(findings, Finding{Field: PIIFieldPhone, MaskedValue: MaskDigits(match)})
	}
	for _, match := range s.nhsPattern.FindAllString(content, -1) {
		findings = append(findings, Finding{Field: PIIFieldNHSNumber, MaskedValue: MaskDigits(match)})
	}
	for _, match := range s.nationalIDPattern.FindAllString(content, -1) {
		findings = append(findings, Finding{Field: PIIFieldNationalID, MaskedValue: MaskDigits(match)})
	}

	return findings
}

// ContainsPII checks if a string contains any PII.
func (s *Scanner) ContainsPII(content string) bool {
	return s.emailPattern.MatchString(content) ||
		s.phonePattern.MatchString(content) ||
		s.nhsPattern.MatchString(content) ||
		s.nationalIDPattern.MatchString(content)
}

// Redact replaces PII with redaction markers.
func (s *Scanner) Redact(content string) string {
	content = s.emailPattern.ReplaceAllString(content, "[REDACTED-EMAIL]")
	content = s.phonePattern.ReplaceAllString(content, "[REDACTED-PHONE]")
	content = s.nhsPattern.ReplaceAllString(content, "[REDACTED-NHS]")
	content = s.nationalIDPattern.ReplaceAllString(content, "[REDACTED-ID]")
	return content
}

// MaskDigits keeps the last four characters.
func MaskDigits(v string) string {
	v = strings.TrimSpace(v)
	if len(v) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// MaskEmail returns a masked version of an email address.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***@***"
	}
	if at <= 2 {
		return email[:1] + "***@" + email[at+1:]
	}
	return email[:2] + "***@" + email[at+1:]
}
