// Package validate normalizes and rejects malformed feedback submissions.
//
// The widget sends a loose JSON object; this package is the single place that
// turns it into a typed ValidatedSubmission. The policy is deliberately
// permissive: unknown enum values coerce to defaults, malformed optional
// fields are dropped silently, and only a missing or too-short rawText is a
// hard error. Validation is a pure function over its input.
package validate

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/driftboard/feedback/internal/model"
)

// Limits applied during sanitization. Oversized values are truncated or
// dropped, never rejected.
const (
	MinTextLen        = 5
	MaxTextLen        = 5000
	MaxPageURLLen     = 2000
	MaxSelectorLen    = 500
	MaxTextPreviewLen = 200
	MaxContextBytes   = 10000
)

// Error describes a validation failure. The message only ever refers to the
// shape of the input, never its content, so it is safe to return verbatim.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// ErrTextRequired is returned when rawText is absent, not a string, or
// shorter than MinTextLen after sanitization. It is the only hard failure
// this package produces.
var ErrTextRequired = &Error{
	Code:    "text_required",
	Message: "rawText is required and must be at least 5 characters after sanitization",
}

var (
	// Tag-delimited spans (including script/style bodies) go first, then any
	// stray angle brackets left behind.
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
)

// SanitizeText strips HTML/script-like content, trims whitespace, and
// truncates to MaxTextLen. Running it on its own output is a no-op.
func SanitizeText(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > MaxTextLen {
		s = strings.TrimSpace(string(runes[:MaxTextLen]))
	}
	return s
}

// Validate turns an untyped caller payload into a ValidatedSubmission.
// On failure it returns a typed *Error; the caller must not have touched the
// rate limiter or the store before calling this.
func Validate(raw map[string]any) (*model.ValidatedSubmission, *Error) {
	text, ok := raw["rawText"].(string)
	if !ok {
		return nil, ErrTextRequired
	}
	text = SanitizeText(text)
	if len([]rune(text)) < MinTextLen {
		return nil, ErrTextRequired
	}

	sub := &model.ValidatedSubmission{
		RawText:  text,
		Category: coerceCategory(raw["category"]),
		Severity: coerceSeverity(raw["severity"]),
	}

	if u, ok := raw["pageUrl"].(string); ok {
		sub.PageURL = sanitizePageURL(u)
	}
	if dt, ok := raw["deviceType"].(string); ok {
		sub.DeviceType = strings.TrimSpace(dt)
	}
	if el, ok := raw["targetElement"].(map[string]any); ok {
		sub.TargetElement = sanitizeTargetElement(el)
	}
	if ctx, ok := raw["context"].(map[string]any); ok {
		sub.Context = sanitizeContext(ctx)
	}

	return sub, nil
}

// coerceCategory maps any value onto the closed category set, defaulting to
// "other". Coercion instead of rejection is a deliberate design choice.
func coerceCategory(v any) string {
	s, ok := v.(string)
	if !ok {
		return model.CategoryOther
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if model.ValidCategory(s) {
		return s
	}
	return model.CategoryOther
}

func coerceSeverity(v any) string {
	s, ok := v.(string)
	if !ok {
		return model.SeverityMedium
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if model.ValidSeverity(s) {
		return s
	}
	return model.SeverityMedium
}

// sanitizePageURL returns the URL truncated to MaxPageURLLen, or "" when it
// does not parse as an absolute URL. A bad URL is dropped, not an error.
func sanitizePageURL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > MaxPageURLLen {
		s = s[:MaxPageURLLen]
	}
	u, err := url.ParseRequestURI(s)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return s
}

// sanitizeTargetElement keeps the element only when both selector and tagName
// are present strings; otherwise the whole field is dropped.
func sanitizeTargetElement(raw map[string]any) *model.TargetElement {
	selector, okSel := raw["selector"].(string)
	tagName, okTag := raw["tagName"].(string)
	if !okSel || !okTag || selector == "" || tagName == "" {
		return nil
	}
	if len(selector) > MaxSelectorLen {
		selector = selector[:MaxSelectorLen]
	}

	el := &model.TargetElement{
		Selector: selector,
		TagName:  strings.ToLower(strings.TrimSpace(tagName)),
	}

	if preview, ok := raw["textPreview"].(string); ok {
		if runes := []rune(preview); len(runes) > MaxTextPreviewLen {
			preview = string(runes[:MaxTextPreviewLen])
		}
		el.TextPreview = preview
	}

	if box, ok := raw["boundingBox"].(map[string]any); ok {
		x, okX := box["x"].(float64)
		y, okY := box["y"].(float64)
		w, okW := box["width"].(float64)
		h, okH := box["height"].(float64)
		if okX && okY && okW && okH {
			el.BoundingBox = &model.BoundingBox{X: x, Y: y, Width: w, Height: h}
		}
	}

	return el
}

// sanitizeContext caps the unstructured context map by serialized size.
// Oversized (or unserializable) maps are dropped, not rejected.
func sanitizeContext(ctx map[string]any) map[string]any {
	if len(ctx) == 0 {
		return nil
	}
	encoded, err := json.Marshal(ctx)
	if err != nil || len(encoded) > MaxContextBytes {
		return nil
	}
	return ctx
}
