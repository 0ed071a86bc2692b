package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"addressd/internal/domain"
)

func geminiReply(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": text}},
			},
		}},
	})
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	return body
}

func TestGeminiNormalizeSuccess(t *testing.T) {
	payload := `{"line1":"12 MG Road","line2":"","locality":"indiranagar","city":"bengaluru","district":"bengaluru urban","state":"karnataka","pin_code":"560038","country":"India","confidence":0.92}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		_, _ = w.Write(geminiReply(t, payload))
	}))
	defer srv.Close()

	n, err := NewGeminiNormalizer(GeminiOptions{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := n.Normalize(context.Background(), "12 mg rd indirangr blore 560038")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.City != "Bengaluru" || got.State != "Karnataka" {
		t.Fatalf("expected title-cased city/state, got %q/%q", got.City, got.State)
	}
	if got.PINCode != "560038" {
		t.Fatalf("expected pin 560038, got %q", got.PINCode)
	}
}

func TestGeminiNormalizeStripsCodeFence(t *testing.T) {
	payload := "```json\n{\"line1\":\"1 Park St\",\"city\":\"kolkata\",\"state\":\"west bengal\",\"pin_code\":\"700016\",\"confidence\":0.8}\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(geminiReply(t, payload))
	}))
	defer srv.Close()

	n, err := NewGeminiNormalizer(GeminiOptions{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := n.Normalize(context.Background(), "1 park street kolkata")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.City != "Kolkata" {
		t.Fatalf("expected Kolkata, got %q", got.City)
	}
	if got.Country != "India" {
		t.Fatalf("expected default country India, got %q", got.Country)
	}
}

func TestGeminiNormalizeFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "empty candidates",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[]}`))
			},
		},
		{
			name: "non-json candidate",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(geminiReply(t, "sorry, I cannot help with that"))
			},
		},
		{
			name: "missing required fields",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(geminiReply(t, `{"line1":"","city":"","state":""}`))
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			n, err := NewGeminiNormalizer(GeminiOptions{APIKey: "k", BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, err = n.Normalize(context.Background(), "some address")
			if !errors.Is(err, domain.ErrProviderFailure) {
				t.Fatalf("expected ErrProviderFailure, got %v", err)
			}
		})
	}
}

func TestTidyAddressClearsBadPIN(t *testing.T) {
	got := tidyAddress(&NormalizedAddress{Line1: "x", City: "pune", State: "maharashtra", PINCode: "1234"})
	if got.PINCode != "" {
		t.Fatalf("expected invalid pin cleared, got %q", got.PINCode)
	}
	got = tidyAddress(&NormalizedAddress{Line1: "x", City: "pune", State: "maharashtra", PINCode: "411001", Confidence: 1.7})
	if got.PINCode != "411001" {
		t.Fatalf("expected pin kept, got %q", got.PINCode)
	}
	if got.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", got.Confidence)
	}
}

func TestNewGeminiNormalizerRequiresKey(t *testing.T) {
	if _, err := NewGeminiNormalizer(GeminiOptions{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
