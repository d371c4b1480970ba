// Package flow proxies recommendation queries to a hosted AI
// flow-orchestration service and normalizes its heterogeneous responses into
// a fixed schema.
package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oishii-app/oishii/internal/model"
)

const clientTimeout = 60 * time.Second

// Recommendation is the normalized shape of a single AI food suggestion.
type Recommendation struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Ingredients     []string `json:"ingredients,omitempty"`
	Preparation     string   `json:"preparation,omitempty"`
	NutritionalInfo string   `json:"nutritional_info,omitempty"`
	CuisineType     string   `json:"cuisine_type,omitempty"`
	DietaryTags     []string `json:"dietary_tags,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
}

// Client invokes a single externally configured flow by ID.
type Client struct {
	baseURL     string
	workspaceID string
	flowID      string
	http        *http.Client

	mu           sync.Mutex
	token        string
	refreshToken string
}

// NewClient creates a flow service client. The flow itself (its graph,
// components, and model wiring) lives on the hosted service; only its IDs and
// credentials are configured here.
func NewClient(baseURL, workspaceID, flowID, token, refreshToken string) *Client {
	return &Client{
		baseURL:      baseURL,
		workspaceID:  workspaceID,
		flowID:       flowID,
		token:        token,
		refreshToken: refreshToken,
		http:         &http.Client{Timeout: clientTimeout},
	}
}

// Recommend asks the flow for up to limit food suggestions for the query,
// folding the user's stored preferences into the prompt when present.
func (c *Client) Recommend(ctx context.Context, query string, prefs *model.FoodPreference, limit int) ([]Recommendation, error) {
	raw, err := c.Run(ctx, buildPrompt(query, prefs, limit))
	if err != nil {
		return nil, err
	}
	return Normalize(raw, limit), nil
}

// Run sends a chat message through the flow and returns the raw response
// payload. An expired bearer token is refreshed and the call retried once.
func (c *Client) Run(ctx context.Context, message string) (map[string]any, error) {
	payload, status, err := c.runOnce(ctx, message)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if err := c.refresh(ctx); err != nil {
			return nil, fmt.Errorf("refresh flow token: %w", err)
		}
		payload, status, err = c.runOnce(ctx, message)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("flow service returned status %d", status)
	}
	return payload, nil
}

func (c *Client) runOnce(ctx context.Context, message string) (map[string]any, int, error) {
	body, err := json.Marshal(map[string]any{
		"input_value": message,
		"output_type": "chat",
		"input_type":  "chat",
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode flow request: %w", err)
	}

	url := fmt.Sprintf("%s/lf/%s/api/v1/run/%s", c.baseURL, c.workspaceID, c.flowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build flow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("call flow service: %w", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, 0, fmt.Errorf("decode flow response: %w", err)
		}
	}
	return payload, resp.StatusCode, nil
}

// refresh exchanges the refresh token for a new bearer token.
func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return fmt.Errorf("no refresh token configured")
	}

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call refresh endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("refresh endpoint returned status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}

	token := out.AccessToken
	if token == "" {
		token = out.Token
	}
	if token == "" {
		return fmt.Errorf("refresh response missing token")
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// buildPrompt folds the query and the user's stored preferences into a chat
// message for the flow.
func buildPrompt(query string, prefs *model.FoodPreference, limit int) string {
	var b strings.Builder
	if prefs != nil {
		b.WriteString("User preferences:\n")
		writePrefLine(&b, "Taste preferences", prefs.TastePreferences)
		writePrefLine(&b, "Dietary restrictions", prefs.DietaryRestrictions)
		writePrefLine(&b, "Allergies", prefs.Allergies)
		writePrefLine(&b, "Preferred cuisines", prefs.CuisinePreferences)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Please recommend %d food options for: %s", limit, query)
	return b.String()
}

func writePrefLine(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(values, ", "))
}
