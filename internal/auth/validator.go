package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flybeeper/routecast/pkg/utils"
)

// ErrInvalidToken токен отклонен сервисом авторизации
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenValidator проверяет токен и возвращает пользователя
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*User, error)
}

// Validator проверяет токены через внешний сервис авторизации
type Validator struct {
	apiEndpoint string
	httpClient  *http.Client
	cache       TokenCache
	logger      *utils.Logger
}

// NewValidator создает валидатор токенов
func NewValidator(apiEndpoint string, cache TokenCache, logger *utils.Logger) *Validator {
	return &Validator{
		apiEndpoint: apiEndpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		cache:  cache,
		logger: logger,
	}
}

// ValidateToken проверяет токен, сначала по кешу
func (v *Validator) ValidateToken(ctx context.Context, token string) (*User, error) {
	if user, err := v.cache.GetUser(ctx, token); err != nil {
		v.logger.WithError(err).Warn("Failed to get user from token cache")
	} else if user != nil {
		v.logger.WithField("user_id", user.ID).Debug("User found in token cache")
		return user, nil
	}

	user, err := v.validateWithAPI(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := v.cache.SetUser(ctx, token, user); err != nil {
		v.logger.WithError(err).Warn("Failed to cache user")
	}

	v.logger.WithField("user_id", user.ID).Debug("User validated and cached")
	return user, nil
}

func (v *Validator) validateWithAPI(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "routecast/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var user User
		if err := json.Unmarshal(body, &user); err != nil {
			return nil, fmt.Errorf("failed to parse user data: %w", err)
		}
		if user.ID == 0 {
			return nil, ErrInvalidToken
		}
		return &user, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		v.logger.WithField("token_prefix", tokenPrefix(token)).Debug("Token validation failed")
		return nil, ErrInvalidToken

	default:
		v.logger.WithFields(map[string]interface{}{
			"status_code": resp.StatusCode,
			"response":    string(body),
		}).Error("Unexpected response from auth service")
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}
}

// InvalidateToken удаляет токен из кеша
func (v *Validator) InvalidateToken(ctx context.Context, token string) error {
	return v.cache.DeleteUser(ctx, token)
}

func tokenPrefix(token string) string {
	if len(token) > 10 {
		return token[:10]
	}
	return token
}
