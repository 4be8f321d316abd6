package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"harmonika/internal/auth"
	"harmonika/internal/config"
	"harmonika/internal/models"
)

// SetStatus logs in to the admin API of a running server and sets the admin presence.
func SetStatus(ctx context.Context, cfg *config.Config, status models.AdminStatus) error {
	if !status.Valid() {
		return fmt.Errorf("status must be %s or %s", models.AdminStatusOnline, models.AdminStatusAway)
	}
	base := fmt.Sprintf("http://%s/admin", cfg.AdminAddr)

	var login auth.LoginResponse
	err := call(ctx, http.MethodPost, base+"/login", "",
		auth.LoginRequest{Username: cfg.AdminUser, Password: cfg.AdminPassword}, &login)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	defer func() {
		_ = call(context.WithoutCancel(ctx), http.MethodPost, base+"/logout", login.Token, nil, nil)
	}()

	var result struct {
		Status models.AdminStatus `json:"status"`
	}
	if err := call(ctx, http.MethodPut, base+"/status", login.Token, map[string]models.AdminStatus{"status": status}, &result); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}

	fmt.Printf("Admin status: %s\n", result.Status)
	return nil
}

func call(ctx context.Context, method, url, token string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("token", token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
