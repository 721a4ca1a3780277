package logging

import (
	"log/slog"
	"strings"
)

// sensitiveKeys are attribute keys whose values never reach the log output.
var sensitiveKeys = []string{
	"sas",
	"sastoken",
	"sas_token",
	"accountkey",
	"account_key",
	"connectionstring",
	"connection_string",
	"password",
	"secret",
}

// sensitiveMarkers appear inside SAS URLs and connection strings.
var sensitiveMarkers = []string{"sig=", "AccountKey=", "SharedAccessSignature="}

// ShouldMask reports whether the attribute key names a credential.
func ShouldMask(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if k == s {
			return true
		}
	}
	return false
}

// ContainsCredential reports whether a value embeds a SAS signature or account key.
func ContainsCredential(v string) bool {
	for _, m := range sensitiveMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

// MaskValue keeps the last four characters of v.
func MaskValue(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if ShouldMask(a.Key) {
		return slog.String(a.Key, MaskValue(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindString && ContainsCredential(a.Value.String()) {
		return slog.String(a.Key, MaskValue(a.Value.String()))
	}
	return a
}
