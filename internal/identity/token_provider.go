package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider extracts the actor id from the session access token the
// auth provider leaves on disk. The token is the agent's own session
// credential; signature verification is the backend's job, here we only
// read the subject claim out of it.
type TokenProvider struct {
	path   string
	parser *jwt.Parser
}

func NewTokenProvider(path string) *TokenProvider {
	return &TokenProvider{
		path:   path,
		parser: jwt.NewParser(),
	}
}

func (p *TokenProvider) CurrentActor(_ context.Context) (string, error) {
	if p.path == "" {
		return "", ErrUnavailable
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrUnavailable
		}
		return "", fmt.Errorf("read session token: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrUnavailable
	}

	claims := jwt.MapClaims{}
	if _, _, err := p.parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", ErrUnavailable
	}

	return sub, nil
}
