// Package enhance derives a summary, a category, and a developer question for
// a validated submission by calling an external completion provider, with a
// deterministic template fallback.
//
// Enhance never fails its caller. The strategies are an explicit ordered
// list — provider first, fallback last — and the chain always terminates in
// the fallback, so a submission is never lost or delayed past the provider
// timeout because the enhancement service is down. Whether a result came from
// the provider or the fallback is advisory, surfaced only in logs.
package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driftboard/feedback/internal/config"
	"github.com/driftboard/feedback/internal/model"
)

// strategy is one attempt at producing an enhancement. ok=false means "move
// on to the next strategy"; a strategy never aborts the chain.
type strategy interface {
	name() string
	attempt(ctx context.Context, sub *model.ValidatedSubmission) (*model.AIEnhancement, bool)
}

// Enhancer runs the strategy chain for one deployment.
type Enhancer struct {
	client *Client
	logger *slog.Logger
}

// New builds an Enhancer. client may be nil or unconfigured; the enhancer
// then goes straight to the fallback without a network call.
func New(client *Client, logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhancer{client: client, logger: logger}
}

// Enhance produces the enhancement for a submission under cfg. It always
// returns a value with all three fields present (possibly null).
func (e *Enhancer) Enhance(ctx context.Context, sub *model.ValidatedSubmission, cfg config.EffectiveConfig) model.AIEnhancement {
	if !cfg.AI.Enabled || !e.client.Configured() {
		return Fallback(sub)
	}

	chain := []strategy{
		&providerStrategy{client: e.client, ai: cfg.AI, logger: e.logger},
		fallbackStrategy{},
	}

	for _, s := range chain {
		if enh, ok := s.attempt(ctx, sub); ok {
			e.logger.Debug("enhancement produced", "strategy", s.name())
			return *enh
		}
	}

	// Unreachable: fallbackStrategy always succeeds. Kept so the chain is
	// total even if someone reorders it.
	return Fallback(sub)
}

// fallbackStrategy terminates the chain; it cannot fail.
type fallbackStrategy struct{}

func (fallbackStrategy) name() string { return "fallback" }

func (fallbackStrategy) attempt(_ context.Context, sub *model.ValidatedSubmission) (*model.AIEnhancement, bool) {
	enh := Fallback(sub)
	return &enh, true
}

// providerStrategy asks the completion provider for a structured JSON
// enhancement. Any failure — timeout, non-2xx, unparsable body, wrong
// shape — logs and yields to the next strategy.
type providerStrategy struct {
	client *Client
	ai     config.AISettings
	logger *slog.Logger
}

func (p *providerStrategy) name() string { return "provider" }

func (p *providerStrategy) attempt(ctx context.Context, sub *model.ValidatedSubmission) (*model.AIEnhancement, bool) {
	system, user := buildPrompts(sub, p.ai)

	content, err := p.client.Complete(ctx, system, user)
	if err != nil {
		p.logger.Warn("provider enhancement failed, using fallback",
			"provider", p.ai.Provider, "error", err)
		return nil, false
	}

	enh, err := parseEnhancement(content)
	if err != nil {
		p.logger.Warn("provider returned unusable enhancement, using fallback",
			"provider", p.ai.Provider, "error", err)
		return nil, false
	}

	// Fields the deployment did not ask for are nulled rather than dropped:
	// the struct shape stays identical across configurations.
	if !p.ai.Summarize {
		enh.Summary = nil
	}
	if !p.ai.Categorize {
		enh.Category = nil
	}
	if !p.ai.GenerateDevPrompt {
		enh.DevQuestion = nil
	}

	return enh, true
}

const systemPrompt = `You are triaging user feedback for a web application.
Respond with ONLY a valid JSON object, no commentary and no markdown, shaped as:
{"summary": "...", "category": "...", "devQuestion": "..."}
- summary: one sentence restating the feedback for a developer.
- category: exactly one of bug, feature, ui_ux, suggestion, other.
- devQuestion: the single most useful follow-up question to ask the reporter.`

// buildPrompts makes the fixed system+user prompt pair from the submission's
// text, page URL, target element, and device type.
func buildPrompts(sub *model.ValidatedSubmission, ai config.AISettings) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Feedback (severity: %s):\n%s\n", sub.Severity, sub.RawText)

	if sub.PageURL != "" {
		fmt.Fprintf(&b, "\nPage URL: %s\n", sub.PageURL)
	}
	if sub.DeviceType != "" {
		fmt.Fprintf(&b, "Device: %s\n", sub.DeviceType)
	}
	if el := sub.TargetElement; el != nil {
		fmt.Fprintf(&b, "Targeted element: <%s> selector %q", el.TagName, el.Selector)
		if el.TextPreview != "" {
			fmt.Fprintf(&b, " with text %q", el.TextPreview)
		}
		b.WriteString("\n")
	}

	var wants []string
	if ai.Summarize {
		wants = append(wants, "summary")
	}
	if ai.Categorize {
		wants = append(wants, "category")
	}
	if ai.GenerateDevPrompt {
		wants = append(wants, "devQuestion")
	}
	if len(wants) > 0 {
		fmt.Fprintf(&b, "\nPopulate: %s.\n", strings.Join(wants, ", "))
	}

	return systemPrompt, b.String()
}

// parseEnhancement decodes the provider's JSON payload. A category outside
// the closed set is discarded (field becomes null) rather than stored
// verbatim.
func parseEnhancement(content string) (*model.AIEnhancement, error) {
	content = stripCodeFence(content)

	var parsed struct {
		Summary     string `json:"summary"`
		Category    string `json:"category"`
		DevQuestion string `json:"devQuestion"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parse enhancement JSON: %w", err)
	}
	if parsed.Summary == "" && parsed.Category == "" && parsed.DevQuestion == "" {
		return nil, fmt.Errorf("enhancement payload missing expected fields")
	}

	enh := &model.AIEnhancement{}
	if parsed.Summary != "" {
		s := strings.TrimSpace(parsed.Summary)
		enh.Summary = &s
	}
	if c := strings.ToLower(strings.TrimSpace(parsed.Category)); model.ValidCategory(c) {
		enh.Category = &c
	}
	if parsed.DevQuestion != "" {
		q := strings.TrimSpace(parsed.DevQuestion)
		enh.DevQuestion = &q
	}
	return enh, nil
}
