package redact

// defaultRules covers the credential shapes most likely to show up in
// application error logs: cloud keys, VCS and SaaS tokens, connection
// strings with inline passwords, JWTs, and key material.
func defaultRules() []Rule {
	return []Rule{
		{
			ID:       "aws-access-key-id",
			Pattern:  `(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`,
			Keywords: []string{"akia", "asia", "aws", "a3t", "agpa", "aida", "aroa", "aipa", "anpa", "anva"},
		},
		{
			ID:       "aws-secret-access-key",
			Pattern:  `(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords: []string{"secret"},
		},
		{
			ID:       "generic-api-key",
			Pattern:  `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords: []string{"api"},
		},
		{
			ID:       "generic-password",
			Pattern:  `(?i)(?:password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords: []string{"pass", "pwd"},
		},
		{
			ID:      "private-key",
			Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
		},
		{
			ID:      "github-token",
			Pattern: `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}`,
		},
		{
			ID:      "gitlab-token",
			Pattern: `glpat-[A-Za-z0-9\-]{20,}`,
		},
		{
			ID:      "slack-token",
			Pattern: `xox[baprs]-[A-Za-z0-9\-]{10,}`,
		},
		{
			ID:      "stripe-key",
			Pattern: `(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`,
		},
		{
			ID:       "database-url",
			Pattern:  `(?i)(?:postgres|postgresql|mysql|mongodb|redis|amqp)://[^:\s]+:[^@\s]+@[^\s]+`,
			Keywords: []string{"://"},
		},
		{
			ID:      "jwt",
			Pattern: `eyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`,
		},
		{
			ID:      "google-api-key",
			Pattern: `AIza[A-Za-z0-9_\-]{35}`,
		},
		{
			ID:      "bearer-token",
			Pattern: `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`,
		},
	}
}
