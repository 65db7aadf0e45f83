package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/italolelis/premiumize_downloader/internal/api"
)

// ResolveCredentials turns the auth argument, a "user:pin" literal or a
// path to a file containing one, into the credential pair every API call
// carries. Unusable credentials must abort the run before any network
// activity.
func ResolveCredentials(auth string) (api.Credentials, error) {
	if auth == "" {
		return api.Credentials{}, fmt.Errorf("no authentication provided")
	}

	if !strings.Contains(auth, ":") {
		raw, err := os.ReadFile(auth)
		if err != nil {
			return api.Credentials{}, fmt.Errorf("failed to read auth file: %w", err)
		}

		auth = string(raw)
	}

	user, pin, ok := strings.Cut(strings.TrimSpace(auth), ":")
	if !ok {
		return api.Credentials{}, fmt.Errorf("malformed credentials: expected user:pin")
	}

	creds := api.Credentials{CustomerID: user, PIN: pin}
	if !creds.Valid() {
		return api.Credentials{}, fmt.Errorf("malformed credentials: empty user or pin")
	}

	return creds, nil
}
