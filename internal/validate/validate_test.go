package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/feedback/internal/model"
)

func TestValidateTextRequired(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{name: "missing rawText", raw: map[string]any{}},
		{name: "non-string rawText", raw: map[string]any{"rawText": 42.0}},
		{name: "nil rawText", raw: map[string]any{"rawText": nil}},
		{name: "empty string", raw: map[string]any{"rawText": ""}},
		{name: "whitespace only", raw: map[string]any{"rawText": "   \n\t  "}},
		{name: "too short", raw: map[string]any{"rawText": "hi"}},
		{name: "short after sanitization", raw: map[string]any{"rawText": "<b><i><u>ok</u></i></b>"}},
		{name: "only markup", raw: map[string]any{"rawText": "<script>alert('x')</script>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := Validate(tt.raw)
			assert.Nil(t, sub)
			require.NotNil(t, err)
			assert.Equal(t, ErrTextRequired.Code, err.Code)
		})
	}
}

func TestValidateSanitizesText(t *testing.T) {
	sub, err := Validate(map[string]any{
		"rawText": "  The <b>login</b> button <script>steal()</script>is broken  ",
	})
	require.Nil(t, err)
	assert.Equal(t, "The login button is broken", sub.RawText)
}

func TestValidateStripsStrayAngleBrackets(t *testing.T) {
	sub, err := Validate(map[string]any{"rawText": "value is < expected and > nothing works"})
	require.Nil(t, err)
	assert.NotContains(t, sub.RawText, "<")
	assert.NotContains(t, sub.RawText, ">")
}

func TestValidateTruncatesLongText(t *testing.T) {
	sub, err := Validate(map[string]any{"rawText": strings.Repeat("a", MaxTextLen+500)})
	require.Nil(t, err)
	assert.Len(t, sub.RawText, MaxTextLen)
}

func TestSanitizeTextIdempotent(t *testing.T) {
	inputs := []string{
		"plain text with no markup at all",
		"had <b>tags</b> and a <script>block</script> once",
		"  padded   ",
		strings.Repeat("long ", 2000),
	}
	for _, in := range inputs {
		once := SanitizeText(in)
		twice := SanitizeText(once)
		assert.Equal(t, once, twice, "sanitizing sanitized text must be a no-op")
	}
}

func TestValidateCoercesCategory(t *testing.T) {
	tests := []struct {
		give any
		want string
	}{
		{give: "bug", want: model.CategoryBug},
		{give: "BUG", want: model.CategoryBug},
		{give: " ui_ux ", want: model.CategoryUIUX},
		{give: "nonsense", want: model.CategoryOther},
		{give: nil, want: model.CategoryOther},
		{give: 7.0, want: model.CategoryOther},
	}
	for _, tt := range tests {
		sub, err := Validate(map[string]any{"rawText": "something is wrong here", "category": tt.give})
		require.Nil(t, err)
		assert.Equal(t, tt.want, sub.Category)
	}
}

func TestValidateCoercesSeverity(t *testing.T) {
	tests := []struct {
		give any
		want string
	}{
		{give: "critical", want: model.SeverityCritical},
		{give: "HIGH", want: model.SeverityHigh},
		{give: "urgent!!", want: model.SeverityMedium},
		{give: nil, want: model.SeverityMedium},
	}
	for _, tt := range tests {
		sub, err := Validate(map[string]any{"rawText": "something is wrong here", "severity": tt.give})
		require.Nil(t, err)
		assert.Equal(t, tt.want, sub.Severity)
	}
}

func TestValidatePageURL(t *testing.T) {
	t.Run("valid URL kept", func(t *testing.T) {
		sub, err := Validate(map[string]any{
			"rawText": "something is wrong here",
			"pageUrl": "https://example.com/checkout?step=2",
		})
		require.Nil(t, err)
		assert.Equal(t, "https://example.com/checkout?step=2", sub.PageURL)
	})

	t.Run("unparsable URL dropped silently", func(t *testing.T) {
		sub, err := Validate(map[string]any{
			"rawText": "something is wrong here",
			"pageUrl": "not a url at all",
		})
		require.Nil(t, err)
		assert.Empty(t, sub.PageURL)
	})

	t.Run("oversized URL truncated before parse", func(t *testing.T) {
		long := "https://example.com/" + strings.Repeat("x", MaxPageURLLen)
		sub, err := Validate(map[string]any{"rawText": "something is wrong here", "pageUrl": long})
		require.Nil(t, err)
		assert.LessOrEqual(t, len(sub.PageURL), MaxPageURLLen)
	})
}

func TestValidateTargetElement(t *testing.T) {
	t.Run("complete element kept and truncated", func(t *testing.T) {
		sub, err := Validate(map[string]any{
			"rawText": "something is wrong here",
			"targetElement": map[string]any{
				"selector":    strings.Repeat("div > ", 200),
				"tagName":     "BUTTON",
				"textPreview": strings.Repeat("p", 300),
				"boundingBox": map[string]any{"x": 10.0, "y": 20.0, "width": 100.0, "height": 40.0},
			},
		})
		require.Nil(t, err)
		require.NotNil(t, sub.TargetElement)
		assert.Len(t, sub.TargetElement.Selector, MaxSelectorLen)
		assert.Equal(t, "button", sub.TargetElement.TagName)
		assert.Len(t, sub.TargetElement.TextPreview, MaxTextPreviewLen)
		require.NotNil(t, sub.TargetElement.BoundingBox)
		assert.Equal(t, 100.0, sub.TargetElement.BoundingBox.Width)
	})

	t.Run("missing tagName drops the whole field", func(t *testing.T) {
		sub, err := Validate(map[string]any{
			"rawText":       "something is wrong here",
			"targetElement": map[string]any{"selector": "#submit"},
		})
		require.Nil(t, err)
		assert.Nil(t, sub.TargetElement)
	})

	t.Run("non-string selector drops the whole field", func(t *testing.T) {
		sub, err := Validate(map[string]any{
			"rawText":       "something is wrong here",
			"targetElement": map[string]any{"selector": 5.0, "tagName": "a"},
		})
		require.Nil(t, err)
		assert.Nil(t, sub.TargetElement)
	})
}

func TestValidateContextSizeCap(t *testing.T) {
	t.Run("small context kept", func(t *testing.T) {
		sub, err := Validate(map[string]any{
			"rawText": "something is wrong here",
			"context": map[string]any{"theme": "dark", "locale": "en-GB"},
		})
		require.Nil(t, err)
		assert.Equal(t, "dark", sub.Context["theme"])
	})

	t.Run("oversized context dropped not rejected", func(t *testing.T) {
		sub, err := Validate(map[string]any{
			"rawText": "something is wrong here",
			"context": map[string]any{"blob": strings.Repeat("z", MaxContextBytes+1)},
		})
		require.Nil(t, err)
		assert.Nil(t, sub.Context)
	})
}
