package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"harmonika/internal/models"
	"harmonika/internal/storage"

	"github.com/c-pro/geche"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	loginFailedMessage = "Login failed"
)

// ErrTooManyAttempts is returned while logins are throttled after repeated failures.
var ErrTooManyAttempts = errors.New("too many failed login attempts")

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

type Config struct {
	Username string
	// Password is hashed on Validate when PasswordHash is empty.
	Password     string
	PasswordHash string
	TokenExpiry  time.Duration
}

func (c *Config) Validate() error {
	if c.Username == "" {
		return errors.New("admin username is required")
	}

	if c.PasswordHash == "" {
		if c.Password == "" {
			return errors.New("admin password is required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		c.PasswordHash = string(hash)
	} else if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
		return fmt.Errorf("admin password hash is not a bcrypt hash: %w", err)
	}
	c.Password = ""

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

// AuthService is the login gate of the admin dashboard. There is a single admin account.
type AuthService struct {
	Config
	// store receives the isAuthenticated flag. Optional.
	store      storage.Store
	liveTokens geche.Geche[string, string]
	now        func() time.Time

	mu sync.Mutex
	// Consecutive failed login attempts, to throttle brute force attacks.
	failedLoginAttempts int64
	lastAttemptTime     int64
}

func NewAuthService(ctx context.Context, config Config, store storage.Store) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:     config,
		store:      store,
		liveTokens: geche.NewMapTTLCache[string, string](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}, nil
}

// Login checks the credentials and issues a bearer token.
func (as *AuthService) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	now := as.now()
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.failedLoginAttempts > 3 {
		nextAttempt := as.lastAttemptTime + 30*(as.failedLoginAttempts*as.failedLoginAttempts)
		if now.Unix() < nextAttempt {
			return LoginResponse{
				Message: fmt.Sprintf("Too many failed login attempts. Next attempt in %d seconds", nextAttempt-now.Unix()),
			}, ErrTooManyAttempts
		}
	}

	// bcrypt runs even for an unknown username so both failures take the same time.
	passwordErr := bcrypt.CompareHashAndPassword([]byte(as.PasswordHash), []byte(req.Password))
	if passwordErr != nil || req.Username != as.Username {
		as.failedLoginAttempts++
		as.lastAttemptTime = now.Unix()
		slog.Warn("admin login failed", "username", req.Username, "attempts", as.failedLoginAttempts)
		return LoginResponse{Message: loginFailedMessage}, models.ErrPermissionDenied
	}

	token, err := generateToken()
	if err != nil {
		slog.Error("login failed", "username", req.Username, "error", err)
		return LoginResponse{Message: "internal error"}, err
	}

	as.liveTokens.Set(token, as.Username)
	as.failedLoginAttempts = 0
	as.lastAttemptTime = now.Unix()
	as.setAuthenticated(ctx, true)

	return LoginResponse{
		Success:     true,
		Token:       token,
		TokenExpiry: now.Unix() + int64(as.TokenExpiry.Seconds()),
	}, nil
}

func (as *AuthService) Logoff(ctx context.Context, token string) error {
	if err := as.liveTokens.Del(token); err != nil {
		return err
	}
	as.setAuthenticated(ctx, false)
	return nil
}

// GetUserID returns the admin username for a live token.
func (as *AuthService) GetUserID(token string) (string, error) {
	if token == "" {
		return "", models.ErrPermissionDenied
	}
	user, err := as.liveTokens.Get(token)
	if err != nil {
		return "", models.ErrPermissionDenied
	}
	return user, nil
}

// IsAuthenticated reads the dashboard login flag from the shared store.
func (as *AuthService) IsAuthenticated(ctx context.Context) bool {
	if as.store == nil {
		return false
	}
	data, err := as.store.Get(ctx, storage.KeyAuthenticated)
	if err != nil {
		return false
	}
	var flag bool
	if err := json.Unmarshal(data, &flag); err != nil {
		return string(data) == "true"
	}
	return flag
}

func (as *AuthService) setAuthenticated(ctx context.Context, flag bool) {
	if as.store == nil {
		return
	}
	data, _ := json.Marshal(flag)
	if err := as.store.Set(ctx, storage.KeyAuthenticated, data); err != nil {
		slog.Warn("failed to store login flag", "error", err)
	}
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
