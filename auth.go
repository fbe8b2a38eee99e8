package vlmrun

import (
	"net/http"
	"strings"
)

// Version is reported in the User-Agent header.
const Version = "0.4.0"

const userAgent = "vlmrun-golang/" + Version

// Auth handles header generation.
type Auth struct {
	apiKey string
}

func newAuth(cfg Config) Auth {
	return Auth{apiKey: cfg.APIKey}
}

// Headers returns default headers including auth.
func (a Auth) Headers() http.Header {
	h := http.Header{}
	key := a.apiKey
	if strings.HasPrefix(strings.ToLower(key), "bearer ") {
		key = strings.TrimSpace(key[7:])
	}
	h.Set("Authorization", "Bearer "+key)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json")
	return h
}
