// Package authapi is the HTTP client for the LocalMart auth service. It
// implements authgate.AuthClient over the service's JSON envelope and adds
// the storefront-status probe used by seller route guards.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/localmart/authgate"
)

// ErrUnavailable wraps transport-level failures so callers can distinguish
// "the service said no" from "the service could not be reached".
var ErrUnavailable = errors.New("auth service unavailable")

// envelope is the service's uniform response shape. Data carries the
// endpoint-specific payload; TotalCount only appears on list endpoints.
type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Message    string          `json:"message,omitempty"`
	TotalCount int             `json:"totalCount,omitempty"`
}

type authPayload struct {
	Token             string         `json:"token,omitempty"`
	TwoFactorRequired bool           `json:"twoFactorRequired,omitempty"`
	User              *authgate.User `json:"user,omitempty"`
}

// StoreStatus is the seller storefront state returned by the store-status
// probe.
type StoreStatus struct {
	StoreID   string `json:"storeId"`
	Active    bool   `json:"active"`
	Suspended bool   `json:"suspended"`
	Reason    string `json:"reason,omitempty"`
}

// Client talks to the auth service. Construct with NewClient.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a Client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body any) (*envelope, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return &env, nil
}

func (c *Client) authCall(ctx context.Context, path string, body any) (*authgate.AuthReply, error) {
	env, err := c.do(ctx, http.MethodPost, path, "", body)
	if err != nil {
		return nil, err
	}

	reply := &authgate.AuthReply{Success: env.Success, Message: env.Message}
	if len(env.Data) > 0 {
		var payload authPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode payload: %v", ErrUnavailable, err)
		}
		reply.Token = payload.Token
		reply.TwoFactorRequired = payload.TwoFactorRequired
		reply.User = payload.User
	}
	return reply, nil
}

// Login authenticates with a username-or-email identifier and password.
func (c *Client) Login(ctx context.Context, identifier, password string) (*authgate.AuthReply, error) {
	return c.authCall(ctx, "/api/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
}

// Verify2FA completes a two-factor challenge.
func (c *Client) Verify2FA(ctx context.Context, identifier, code string) (*authgate.AuthReply, error) {
	return c.authCall(ctx, "/api/auth/verify-2fa", map[string]string{
		"identifier": identifier,
		"code":       code,
	})
}

// Send2FACode asks the service to (re)send a verification code.
func (c *Client) Send2FACode(ctx context.Context, identifier string) error {
	env, err := c.do(ctx, http.MethodPost, "/api/auth/send-2fa-code", "", map[string]string{
		"identifier": identifier,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return serviceError(env, "send 2fa code rejected")
	}
	return nil
}

// Register creates an account. A successful registration may or may not log
// the user in depending on whether email verification is required; the reply
// carries a token only in the former case.
func (c *Client) Register(ctx context.Context, req authgate.RegisterRequest) (*authgate.AuthReply, error) {
	return c.authCall(ctx, "/api/auth/register", req)
}

// Refresh exchanges the token for a fresh one.
func (c *Client) Refresh(ctx context.Context, token string) (*authgate.AuthReply, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/auth/refresh", token, nil)
	if err != nil {
		return nil, err
	}
	reply := &authgate.AuthReply{Success: env.Success, Message: env.Message}
	if len(env.Data) > 0 {
		var payload authPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode payload: %v", ErrUnavailable, err)
		}
		reply.Token = payload.Token
		reply.User = payload.User
	}
	return reply, nil
}

// Logout revokes the token, or every token for the account when
// fromAllDevices is set.
func (c *Client) Logout(ctx context.Context, token string, fromAllDevices bool) error {
	path := "/api/auth/logout"
	if fromAllDevices {
		path += "?allDevices=true"
	}
	env, err := c.do(ctx, http.MethodPost, path, token, nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return serviceError(env, "logout rejected")
	}
	return nil
}

// ForgotPassword starts a password reset for the given email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	env, err := c.do(ctx, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{
		"email": email,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return serviceError(env, "forgot password rejected")
	}
	return nil
}

// ResetPassword completes a reset started by ForgotPassword.
func (c *Client) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	env, err := c.do(ctx, http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"token":       resetToken,
		"newPassword": newPassword,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return serviceError(env, "reset password rejected")
	}
	return nil
}

// ChangePassword changes the password for an authenticated session.
func (c *Client) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	env, err := c.do(ctx, http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return serviceError(env, "change password rejected")
	}
	return nil
}

// VerifyEmail confirms an email address with the token from the
// verification mail.
func (c *Client) VerifyEmail(ctx context.Context, verifyToken string) error {
	env, err := c.do(ctx, http.MethodPost, "/api/auth/verify-email", "", map[string]string{
		"token": verifyToken,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return serviceError(env, "email verification rejected")
	}
	return nil
}

// FetchStoreStatus probes the storefront state for a seller. Guards treat
// any failure as "not active".
func (c *Client) FetchStoreStatus(ctx context.Context, sellerID string) (*StoreStatus, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/stores/status?sellerId="+url.QueryEscape(sellerID), "", nil)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, serviceError(env, "store status rejected")
	}
	var status StoreStatus
	if err := json.Unmarshal(env.Data, &status); err != nil {
		return nil, fmt.Errorf("%w: decode store status: %v", ErrUnavailable, err)
	}
	return &status, nil
}

func serviceError(env *envelope, fallback string) error {
	if env.Message != "" {
		return errors.New(env.Message)
	}
	return errors.New(fallback)
}
