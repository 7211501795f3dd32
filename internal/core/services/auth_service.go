package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/pkg/utils"
	"studymesh/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the identity payload carried in platform-issued tokens.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// authProvider fronts the external auth platform: credential operations go
// over its HTTP endpoint, identity resolution parses the bearer token
// locally. Callers without a token get a stable generated guest identity.
type authProvider struct {
	baseURL   string
	jwtSecret []byte
	client    *http.Client
	logger    *zap.SugaredLogger

	guestID domain.Identity
}

func NewAuthProvider(baseURL, jwtSecret string, logger *zap.SugaredLogger) ports.AuthProvider {
	return &authProvider{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		jwtSecret: []byte(jwtSecret),
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
		guestID:   domain.Identity(utils.GenerateGuestID()),
	}
}

type credentialResponse struct {
	Token string `json:"token"`
	User  struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
	} `json:"user"`
}

func (a *authProvider) Login(ctx context.Context, email, password string) (string, ports.CurrentUser, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return "", ports.CurrentUser{}, err
	}

	resp, err := a.post(ctx, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", ports.CurrentUser{}, err
	}
	return resp.Token, ports.CurrentUser{
		ID:          domain.Identity(resp.User.ID),
		DisplayName: resp.User.DisplayName,
		AvatarURL:   resp.User.AvatarURL,
	}, nil
}

func (a *authProvider) Signup(ctx context.Context, email, password, displayName string) (string, ports.CurrentUser, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return "", ports.CurrentUser{}, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return "", ports.CurrentUser{}, err
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return "", ports.CurrentUser{}, err
	}

	resp, err := a.post(ctx, "/signup", map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	})
	if err != nil {
		return "", ports.CurrentUser{}, err
	}
	return resp.Token, ports.CurrentUser{
		ID:          domain.Identity(resp.User.ID),
		DisplayName: resp.User.DisplayName,
		AvatarURL:   resp.User.AvatarURL,
	}, nil
}

func (a *authProvider) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to build logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("logout rejected with status %d", resp.StatusCode)
	}
	return nil
}

// Current resolves a bearer token to an identity. An empty token yields the
// provider's stable guest identity so unauthenticated users can still join
// rooms; an invalid token is an error, not a guest.
func (a *authProvider) Current(ctx context.Context, token string) (ports.CurrentUser, error) {
	if token == "" {
		return ports.CurrentUser{
			ID:          a.guestID,
			DisplayName: "Guest",
			Guest:       true,
		}, nil
	}

	claims, err := a.parseToken(token)
	if err != nil {
		return ports.CurrentUser{}, err
	}
	return ports.CurrentUser{
		ID:          domain.Identity(claims.UserID),
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.AvatarURL,
	}, nil
}

func (a *authProvider) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func (a *authProvider) post(ctx context.Context, path string, payload map[string]string) (*credentialResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, domain.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("auth platform returned status %d", resp.StatusCode)
	}

	var parsed credentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	return &parsed, nil
}
