package enhance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/feedback/internal/config"
	"github.com/driftboard/feedback/internal/model"
)

func testSubmission() *model.ValidatedSubmission {
	return &model.ValidatedSubmission{
		RawText:    "The login button is too small on mobile",
		Category:   model.CategoryUIUX,
		Severity:   model.SeverityMedium,
		PageURL:    "https://example.com/login",
		DeviceType: "mobile",
	}
}

func aiConfig(provider string) config.EffectiveConfig {
	cfg := config.Preset(config.TierPro)
	cfg.AI.Provider = provider
	return cfg
}

// fakeProvider serves the OpenAI-compatible completion shape with a canned
// assistant message.
func fakeProvider(t *testing.T, assistantContent string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": assistantContent},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func clientFor(url string, timeout time.Duration) *Client {
	return NewClient(ProviderConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-model",
		Timeout: timeout,
	})
}

func TestEnhanceDisabledUsesFallbackWithoutNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	e := New(clientFor(srv.URL, time.Second), nil)
	cfg := aiConfig("openai")
	cfg.AI.Enabled = false

	enh := e.Enhance(context.Background(), testSubmission(), cfg)

	assert.False(t, called, "disabled AI must not hit the provider")
	require.NotNil(t, enh.Summary)
	require.NotNil(t, enh.Category)
	require.NotNil(t, enh.DevQuestion)
	assert.Equal(t, model.CategoryUIUX, *enh.Category)
}

func TestEnhanceUnconfiguredClientUsesFallback(t *testing.T) {
	e := New(NewClient(ProviderConfig{}), nil)
	enh := e.Enhance(context.Background(), testSubmission(), aiConfig("openai"))
	require.NotNil(t, enh.Summary)
	require.NotNil(t, enh.DevQuestion)
}

func TestEnhanceProviderSuccess(t *testing.T) {
	srv := fakeProvider(t, `{"summary":"Login button too small on mobile viewports","category":"ui_ux","devQuestion":"Which device model shows this?"}`, http.StatusOK)
	defer srv.Close()

	e := New(clientFor(srv.URL, time.Second), nil)
	enh := e.Enhance(context.Background(), testSubmission(), aiConfig("openai"))

	require.NotNil(t, enh.Summary)
	assert.Equal(t, "Login button too small on mobile viewports", *enh.Summary)
	require.NotNil(t, enh.Category)
	assert.Equal(t, model.CategoryUIUX, *enh.Category)
	require.NotNil(t, enh.DevQuestion)
}

func TestEnhanceProviderSuccessWithCodeFence(t *testing.T) {
	srv := fakeProvider(t, "```json\n{\"summary\":\"s\",\"category\":\"bug\",\"devQuestion\":\"q\"}\n```", http.StatusOK)
	defer srv.Close()

	e := New(clientFor(srv.URL, time.Second), nil)
	enh := e.Enhance(context.Background(), testSubmission(), aiConfig("openai"))

	require.NotNil(t, enh.Category)
	assert.Equal(t, model.CategoryBug, *enh.Category)
}

func TestEnhanceInvalidCategoryDiscarded(t *testing.T) {
	srv := fakeProvider(t, `{"summary":"s","category":"catastrophic","devQuestion":"q"}`, http.StatusOK)
	defer srv.Close()

	e := New(clientFor(srv.URL, time.Second), nil)
	enh := e.Enhance(context.Background(), testSubmission(), aiConfig("openai"))

	// Out-of-set category becomes null; the other fields survive.
	assert.Nil(t, enh.Category)
	require.NotNil(t, enh.Summary)
	assert.Equal(t, "s", *enh.Summary)
}

func TestEnhanceProviderErrorFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		content string
		status  int
	}{
		{name: "server error", content: "", status: http.StatusInternalServerError},
		{name: "rate limited", content: "", status: http.StatusTooManyRequests},
		{name: "unparsable body", content: "I could not help with that.", status: http.StatusOK},
		{name: "wrong shape", content: `{"answer": 42}`, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeProvider(t, tt.content, tt.status)
			defer srv.Close()

			e := New(clientFor(srv.URL, time.Second), nil)
			enh := e.Enhance(context.Background(), testSubmission(), aiConfig("openai"))

			// Fallback result: all three fields populated.
			require.NotNil(t, enh.Summary)
			require.NotNil(t, enh.Category)
			require.NotNil(t, enh.DevQuestion)
			assert.Equal(t, model.CategoryUIUX, *enh.Category)
		})
	}
}

func TestEnhanceTimeoutFallsBackWithinBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	e := New(clientFor(srv.URL, 150*time.Millisecond), nil)

	start := time.Now()
	enh := e.Enhance(context.Background(), testSubmission(), aiConfig("openai"))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "fallback must substitute as soon as the deadline fires")
	require.NotNil(t, enh.Summary)
	require.NotNil(t, enh.DevQuestion)
}

// A timed-out provider call and a disabled-AI call must produce structurally
// identical enhancements: all three fields present, no partial shapes.
func TestEnhanceStructuralParity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	disabledCfg := aiConfig("openai")
	disabledCfg.AI.Enabled = false
	fromDisabled := New(clientFor(srv.URL, time.Second), nil).Enhance(context.Background(), testSubmission(), disabledCfg)

	fromTimeout := New(clientFor(srv.URL, 100*time.Millisecond), nil).Enhance(context.Background(), testSubmission(), aiConfig("openai"))

	assert.Equal(t, fromDisabled, fromTimeout)
}

func TestFallbackDeterministic(t *testing.T) {
	sub := testSubmission()
	assert.Equal(t, Fallback(sub), Fallback(sub))
}

func TestFallbackCoversEveryCategory(t *testing.T) {
	for _, cat := range []string{
		model.CategoryBug, model.CategoryFeature, model.CategoryUIUX,
		model.CategorySuggestion, model.CategoryOther,
	} {
		sub := testSubmission()
		sub.Category = cat
		enh := Fallback(sub)
		require.NotNil(t, enh.Summary, "category %s", cat)
		require.NotNil(t, enh.Category, "category %s", cat)
		require.NotNil(t, enh.DevQuestion, "category %s", cat)
		assert.Equal(t, cat, *enh.Category)
	}
}

func TestBuildPromptsIncludesContext(t *testing.T) {
	sub := testSubmission()
	sub.TargetElement = &model.TargetElement{
		Selector:    "#login-btn",
		TagName:     "button",
		TextPreview: "Sign in",
	}

	system, user := buildPrompts(sub, aiConfig("openai").AI)
	assert.Contains(t, system, "JSON")
	assert.Contains(t, user, sub.RawText)
	assert.Contains(t, user, sub.PageURL)
	assert.Contains(t, user, "#login-btn")
	assert.Contains(t, user, "mobile")
}
