package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/oishii-app/oishii/internal/model"
)

func TestNormalizeChatEnvelope(t *testing.T) {
	payload := map[string]any{
		"outputs": []any{
			map[string]any{
				"outputs": []any{
					map[string]any{
						"results": map[string]any{
							"message": map[string]any{
								"text": `[{"name":"Miso Soup","cuisine_type":"japanese","confidence_score":0.9}]`,
							},
						},
					},
				},
			},
		},
	}

	recs := Normalize(payload, 5)
	if len(recs) != 1 {
		t.Fatalf("len = %d, want 1", len(recs))
	}
	if recs[0].Name != "Miso Soup" || recs[0].CuisineType != "japanese" {
		t.Errorf("rec = %+v", recs[0])
	}
	if recs[0].ConfidenceScore == nil || *recs[0].ConfidenceScore != 0.9 {
		t.Errorf("ConfidenceScore = %v", recs[0].ConfidenceScore)
	}
}

func TestNormalizeResultShapes(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]any
		wantNames []string
	}{
		{
			name:      "result as array",
			payload:   map[string]any{"result": []any{map[string]any{"name": "Pad Thai"}, "Onigiri"}},
			wantNames: []string{"Pad Thai", "Onigiri"},
		},
		{
			name: "result as object with recommendations",
			payload: map[string]any{"result": map[string]any{
				"recommendations": []any{map[string]any{"name": "Falafel Wrap"}},
			}},
			wantNames: []string{"Falafel Wrap"},
		},
		{
			name:      "result as JSON string",
			payload:   map[string]any{"result": `{"recommendations":[{"name":"Bibimbap"}]}`},
			wantNames: []string{"Bibimbap"},
		},
		{
			name:      "result as fenced JSON string",
			payload:   map[string]any{"result": "```json\n[{\"name\":\"Laksa\"}]\n```"},
			wantNames: []string{"Laksa"},
		},
		{
			name:      "result as plain text lines",
			payload:   map[string]any{"result": "Tomato Soup\n\nGrilled Cheese\n"},
			wantNames: []string{"Tomato Soup", "Grilled Cheese"},
		},
		{
			name:      "empty payload",
			payload:   nil,
			wantNames: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := Normalize(tt.payload, 5)
			if len(recs) != len(tt.wantNames) {
				t.Fatalf("len = %d, want %d", len(recs), len(tt.wantNames))
			}
			for i, want := range tt.wantNames {
				if recs[i].Name != want {
					t.Errorf("recs[%d].Name = %q, want %q", i, recs[i].Name, want)
				}
			}
		})
	}
}

func TestNormalizeRespectsLimit(t *testing.T) {
	payload := map[string]any{"result": "a\nb\nc\nd\ne\nf"}
	recs := Normalize(payload, 3)
	if len(recs) != 3 {
		t.Errorf("len = %d, want 3", len(recs))
	}
}

func TestNormalizeDefaultsMissingName(t *testing.T) {
	payload := map[string]any{"result": []any{map[string]any{"description": "mystery dish"}}}
	recs := Normalize(payload, 5)
	if len(recs) != 1 {
		t.Fatalf("len = %d, want 1", len(recs))
	}
	if recs[0].Name != "Recommendation 1" {
		t.Errorf("Name = %q, want fallback", recs[0].Name)
	}
}

func TestRunSendsChatPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lf/ws-1/api/v1/run/flow-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer flow-token" {
			t.Errorf("Authorization = %q", got)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["input_type"] != "chat" || body["output_type"] != "chat" {
			t.Errorf("body = %v", body)
		}

		json.NewEncoder(w).Encode(map[string]any{"result": "Udon"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "ws-1", "flow-1", "flow-token", "")
	payload, err := c.Run(context.Background(), "cheap dinner ideas")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if payload["result"] != "Udon" {
		t.Errorf("payload = %v", payload)
	}
}

func TestRunRefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/refresh":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "refresh-1" {
				t.Errorf("refresh_token = %q", body["refresh_token"])
			}
			json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh-token"})
		case strings.HasPrefix(r.URL.Path, "/lf/"):
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if got := r.Header.Get("Authorization"); got != "Bearer fresh-token" {
				t.Errorf("Authorization after refresh = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{"result": "Ramen"})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "ws-1", "flow-1", "stale-token", "refresh-1")
	payload, err := c.Run(context.Background(), "late night snack")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if payload["result"] != "Ramen" {
		t.Errorf("payload = %v", payload)
	}
	if calls.Load() != 2 {
		t.Errorf("run calls = %d, want 2", calls.Load())
	}
}

func TestRunRefreshFailsWithoutRefreshToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "ws-1", "flow-1", "stale-token", "")
	if _, err := c.Run(context.Background(), "anything"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestBuildPromptIncludesPreferences(t *testing.T) {
	prefs := &model.FoodPreference{
		DietaryRestrictions: []string{"vegan"},
		Allergies:           []string{"peanuts", "soy"},
	}
	prompt := buildPrompt("quick lunch", prefs, 3)

	for _, want := range []string{"Dietary restrictions: vegan", "Allergies: peanuts, soy", "recommend 3 food options", "quick lunch"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
