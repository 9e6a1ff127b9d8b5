package utils

import (
	"os"
	"strings"
)

var (
	Env_PortalURL = EnvOrDefault("PORTAL_URL", "https://portal.ezca.io/")

	Env_TokenURL     = os.Getenv("TOKEN_URL")
	Env_ClientID     = os.Getenv("CLIENT_ID")
	Env_ClientSecret = os.Getenv("CLIENT_SECRET")
	Env_TokenScope   = EnvOrDefault("TOKEN_SCOPE", "https://management.core.windows.net/.default")
	// Development only, skips the identity backend entirely
	Env_StaticToken = os.Getenv("STATIC_TOKEN")

	Env_HTTPTimeoutSec = MustEnvOrDefaultInt64("HTTP_TIMEOUT_SEC", 30)
	Env_HTTP3          = EnvBool("HTTP3")
	// Only for talking to a local portal with a self-signed cert, never set in production
	Env_InsecureSkipVerify = EnvBool("INSECURE_SKIP_VERIFY")

	// comma separated globs, e.g. *.devices.example.com
	Env_AllowedDomains = SplitNonEmpty(os.Getenv("ALLOWED_DOMAINS"), ",")

	Env_CAName           = os.Getenv("CA_NAME")
	Env_DeviceID         = os.Getenv("DEVICE_ID")
	Env_CertValidityDays = MustEnvOrDefaultInt64("CERT_VALIDITY_DAYS", 10)

	Env_CertDir  = EnvOrDefault("CERT_DIR", ".")
	Env_RedisURL = os.Getenv("REDIS_URL")

	Env_ShutdownTimeoutSeconds = MustEnvOrDefaultInt64("SHUTDOWN_TIMEOUT_SEC", 1)
)

// SplitNonEmpty splits s and drops blank entries.
func SplitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
