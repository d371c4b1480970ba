// Package auth integrates with the hosted authentication provider. The
// provider owns credentials, sessions, and email verification; this package
// forwards those operations and verifies the provider's access tokens
// locally.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const clientTimeout = 15 * time.Second

// APIError is a non-2xx response from the auth provider.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth provider: %s (status %d)", e.Message, e.Status)
}

// Session is a token pair issued by the auth provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"-"`
}

// Client calls the hosted auth provider's REST API.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

// NewClient creates an auth provider client. baseURL is the provider root
// (no trailing slash); anonKey is the project's public API key.
func NewClient(baseURL, anonKey string) *Client {
	return &Client{
		baseURL: baseURL,
		anonKey: anonKey,
		http:    &http.Client{Timeout: clientTimeout},
	}
}

// SignUp registers a new account and returns the provider's user ID. The
// provider sends the verification code email itself.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		ID   string `json:"id"`
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	err := c.post(ctx, "/auth/v1/signup", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return "", err
	}

	// Depending on provider settings the user object is either top-level or
	// nested under "user".
	if resp.ID != "" {
		return resp.ID, nil
	}
	if resp.User.ID != "" {
		return resp.User.ID, nil
	}
	return "", fmt.Errorf("auth provider: signup response missing user id")
}

// SignInWithPassword exchanges credentials for a token pair.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.tokenRequest(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges a refresh token for a fresh token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.tokenRequest(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

func (c *Client) tokenRequest(ctx context.Context, grantType string, body map[string]string) (*Session, error) {
	var resp struct {
		Session
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	err := c.post(ctx, "/auth/v1/token?grant_type="+grantType, "", body, &resp)
	if err != nil {
		return nil, err
	}

	s := resp.Session
	s.UserID = resp.User.ID
	return &s, nil
}

// VerifyEmail confirms account ownership with the short-lived numeric code
// the provider emailed at signup.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) error {
	return c.post(ctx, "/auth/v1/verify", "", map[string]string{
		"type":  "signup",
		"email": email,
		"token": code,
	}, nil)
}

// SignOut revokes the session behind the given access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/auth/v1/logout", accessToken, nil, nil)
}

// post sends a JSON request to the provider and decodes the response into
// out (if non-nil). bearer overrides the default anon key authorization.
func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call auth provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: decodeErrorMessage(resp)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode auth response: %w", err)
		}
	}
	return nil
}

// decodeErrorMessage extracts a human-readable message from the provider's
// error body, which uses either {"msg": ...} or {"error_description": ...}.
func decodeErrorMessage(resp *http.Response) string {
	var body struct {
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.Status
	}
	switch {
	case body.Msg != "":
		return body.Msg
	case body.ErrorDescription != "":
		return body.ErrorDescription
	case body.Error != "":
		return body.Error
	}
	return resp.Status
}
