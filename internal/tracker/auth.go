package tracker

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
)

// Authenticator decorates outbound tracker requests with credentials.
type Authenticator interface {
	Apply(req *http.Request)
}

// BasicAuth authenticates with an account email and API token.
type BasicAuth struct {
	Email string
	Token string
}

func (a BasicAuth) Apply(req *http.Request) {
	cred := base64.StdEncoding.EncodeToString([]byte(a.Email + ":" + a.Token))
	req.Header.Set("Authorization", "Basic "+cred)
}

// BearerAuth authenticates with a personal access token.
type BearerAuth struct {
	Token string
}

func (a BearerAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

// NewAuthenticator selects the strategy named by cfg.Mode.
func NewAuthenticator(cfg config.TrackerAuth) (Authenticator, error) {
	switch cfg.Mode {
	case "basic":
		return BasicAuth{Email: cfg.Email, Token: cfg.Token}, nil
	case "bearer":
		return BearerAuth{Token: cfg.Token}, nil
	default:
		return nil, fmt.Errorf("unknown tracker auth mode %q", cfg.Mode)
	}
}
