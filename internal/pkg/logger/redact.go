package logger

import "strings"

var secretKeyMarkers = []string{"private_key", "secret", "token", "password", "api_key"}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, m := range secretKeyMarkers {
		if strings.Contains(key, m) {
			return true
		}
	}
	return false
}

// RedactSecret masks a credential for safe logging.
// "ya29.a0AfH6SMB" → "ya***"
// Short values (≤4 chars) are fully masked: "abcd" → "***"
func RedactSecret(secret string) string {
	if len(secret) > 4 {
		return secret[:2] + "***"
	}
	return "***"
}
