package compactor

import "regexp"

// builtinSecretPatterns catches common secret shapes in tool output before
// it is written to the content-addressed store: API keys, bearer tokens,
// cloud credentials, generic password/secret assignments, and PEM private
// key blocks. Applied when Config.SanitizeSecrets is true.
var builtinSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w-\.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

const secretRedactionText = "[REDACTED]"

// sanitizeSecrets applies builtinSecretPatterns to body, replacing every
// match with secretRedactionText. Called before a tool result is written to
// storage, not just before the head/tail envelope is built, so a secret
// never reaches disk even via Recover.
func sanitizeSecrets(body string) string {
	for _, re := range builtinSecretPatterns {
		body = re.ReplaceAllString(body, secretRedactionText)
	}
	return body
}

// DetectSecrets reports which builtin pattern names matched body, for
// callers that want to log or alert on a potential secret leak without
// redacting it outright.
func DetectSecrets(body string) []string {
	if body == "" {
		return nil
	}
	names := []string{"api_key", "bearer_token", "cloud_credential", "generic_secret", "private_key"}
	var out []string
	for i, re := range builtinSecretPatterns {
		if re.MatchString(body) {
			out = append(out, names[i])
		}
	}
	return out
}
