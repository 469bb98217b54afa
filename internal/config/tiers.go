// Package config resolves the effective feature/AI configuration for a
// deployment by merging a tier preset with caller-supplied overrides.
//
// The three presets are process-wide constants; Resolve never hands out a
// shared value, every call produces a fresh EffectiveConfig. Resolution is a
// pure function with no I/O.
package config

import "errors"

// TierID names a bundle of default feature/AI/admin settings.
type TierID string

// The canonical tiers.
const (
	TierBasic    TierID = "basic"
	TierStandard TierID = "standard"
	TierPro      TierID = "pro"
)

// ErrMissingAIProvider is the only hard validation rule: a merged config with
// AI enabled must name a provider. Every other mismatch (e.g. summarize on
// while AI is off) is tolerated as an inert flag.
var ErrMissingAIProvider = errors.New("config: ai.enabled requires a non-empty ai.provider")

// Features describes which widget capabilities a deployment exposes.
type Features struct {
	ElementPicker       bool `json:"elementPicker"`
	Categories          bool `json:"categories"`
	SeverityLevels      bool `json:"severityLevels"`
	AnonymousSubmission bool `json:"anonymousSubmission"`
	ScreenshotCapture   bool `json:"screenshotCapture"`
}

// AISettings controls the enhancement pipeline.
type AISettings struct {
	Enabled           bool   `json:"enabled"`
	Provider          string `json:"provider"`
	Summarize         bool   `json:"summarize"`
	Categorize        bool   `json:"categorize"`
	GenerateDevPrompt bool   `json:"generateDevPrompt"`
}

// AdminSettings controls the dashboard extras.
type AdminSettings struct {
	ShowStats       bool `json:"showStats"`
	CopyToClipboard bool `json:"copyToClipboard"`
	ExportEnabled   bool `json:"exportEnabled"`
	StatusUpdates   bool `json:"statusUpdates"`
}

// CustomCategory lets a deployment relabel the category picker. The closed
// validation set in the model package is unaffected.
type CustomCategory struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// EffectiveConfig is the fully merged, validated configuration for one call.
type EffectiveConfig struct {
	Features   Features         `json:"features"`
	AI         AISettings       `json:"ai"`
	Admin      AdminSettings    `json:"admin"`
	Categories []CustomCategory `json:"categories,omitempty"`
}

// Overrides is a partial configuration supplied by the deployment. Pointer
// fields distinguish "absent, keep the preset value" from "present, replace
// it". Categories, when non-nil, replaces the preset list wholesale.
type Overrides struct {
	Features   *FeatureOverrides `json:"features,omitempty"`
	AI         *AIOverrides      `json:"ai,omitempty"`
	Admin      *AdminOverrides   `json:"admin,omitempty"`
	Categories []CustomCategory  `json:"categories,omitempty"`
}

// FeatureOverrides mirrors Features with optional fields.
type FeatureOverrides struct {
	ElementPicker       *bool `json:"elementPicker,omitempty"`
	Categories          *bool `json:"categories,omitempty"`
	SeverityLevels      *bool `json:"severityLevels,omitempty"`
	AnonymousSubmission *bool `json:"anonymousSubmission,omitempty"`
	ScreenshotCapture   *bool `json:"screenshotCapture,omitempty"`
}

// AIOverrides mirrors AISettings with optional fields.
type AIOverrides struct {
	Enabled           *bool   `json:"enabled,omitempty"`
	Provider          *string `json:"provider,omitempty"`
	Summarize         *bool   `json:"summarize,omitempty"`
	Categorize        *bool   `json:"categorize,omitempty"`
	GenerateDevPrompt *bool   `json:"generateDevPrompt,omitempty"`
}

// AdminOverrides mirrors AdminSettings with optional fields.
type AdminOverrides struct {
	ShowStats       *bool `json:"showStats,omitempty"`
	CopyToClipboard *bool `json:"copyToClipboard,omitempty"`
	ExportEnabled   *bool `json:"exportEnabled,omitempty"`
	StatusUpdates   *bool `json:"statusUpdates,omitempty"`
}

// presets are the immutable tier templates. Preset returns copies; nothing
// outside this file may mutate these values.
var presets = map[TierID]EffectiveConfig{
	TierBasic: {
		Features: Features{
			ElementPicker:       true,
			Categories:          true,
			SeverityLevels:      false,
			AnonymousSubmission: true,
			ScreenshotCapture:   false,
		},
		AI:    AISettings{Enabled: false},
		Admin: AdminSettings{},
	},
	TierStandard: {
		Features: Features{
			ElementPicker:       true,
			Categories:          true,
			SeverityLevels:      true,
			AnonymousSubmission: true,
			ScreenshotCapture:   true,
		},
		AI: AISettings{Enabled: false},
		Admin: AdminSettings{
			ShowStats:       true,
			CopyToClipboard: true,
			ExportEnabled:   true,
			StatusUpdates:   true,
		},
	},
	TierPro: {
		Features: Features{
			ElementPicker:       true,
			Categories:          true,
			SeverityLevels:      true,
			AnonymousSubmission: true,
			ScreenshotCapture:   true,
		},
		AI: AISettings{
			Enabled:           true,
			Provider:          "openai",
			Summarize:         true,
			Categorize:        true,
			GenerateDevPrompt: true,
		},
		Admin: AdminSettings{
			ShowStats:       true,
			CopyToClipboard: true,
			ExportEnabled:   true,
			StatusUpdates:   true,
		},
	},
}

// Preset returns a copy of the template for tier. An unknown tier id falls
// back to basic rather than erroring: availability over strictness. This
// mirrors the reference behavior and is preserved deliberately; see DESIGN.md
// before tightening it.
func Preset(tier TierID) EffectiveConfig {
	p, ok := presets[tier]
	if !ok {
		p = presets[TierBasic]
	}
	// Copy the slice so callers can never reach into the preset.
	if len(p.Categories) > 0 {
		p.Categories = append([]CustomCategory(nil), p.Categories...)
	}
	return p
}

// Resolve deep-merges overrides onto the tier preset. Each of features, ai,
// and admin merges key by key (override wins per key); categories replaces
// wholesale when provided. The merged config is then validated.
func Resolve(tier TierID, overrides *Overrides) (EffectiveConfig, error) {
	cfg := Preset(tier)

	if overrides != nil {
		mergeFeatures(&cfg.Features, overrides.Features)
		mergeAI(&cfg.AI, overrides.AI)
		mergeAdmin(&cfg.Admin, overrides.Admin)
		if overrides.Categories != nil {
			cfg.Categories = append([]CustomCategory(nil), overrides.Categories...)
		}
	}

	if cfg.AI.Enabled && cfg.AI.Provider == "" {
		return EffectiveConfig{}, ErrMissingAIProvider
	}
	return cfg, nil
}

func mergeFeatures(dst *Features, o *FeatureOverrides) {
	if o == nil {
		return
	}
	if o.ElementPicker != nil {
		dst.ElementPicker = *o.ElementPicker
	}
	if o.Categories != nil {
		dst.Categories = *o.Categories
	}
	if o.SeverityLevels != nil {
		dst.SeverityLevels = *o.SeverityLevels
	}
	if o.AnonymousSubmission != nil {
		dst.AnonymousSubmission = *o.AnonymousSubmission
	}
	if o.ScreenshotCapture != nil {
		dst.ScreenshotCapture = *o.ScreenshotCapture
	}
}

func mergeAI(dst *AISettings, o *AIOverrides) {
	if o == nil {
		return
	}
	if o.Enabled != nil {
		dst.Enabled = *o.Enabled
	}
	if o.Provider != nil {
		dst.Provider = *o.Provider
	}
	if o.Summarize != nil {
		dst.Summarize = *o.Summarize
	}
	if o.Categorize != nil {
		dst.Categorize = *o.Categorize
	}
	if o.GenerateDevPrompt != nil {
		dst.GenerateDevPrompt = *o.GenerateDevPrompt
	}
}

func mergeAdmin(dst *AdminSettings, o *AdminOverrides) {
	if o == nil {
		return
	}
	if o.ShowStats != nil {
		dst.ShowStats = *o.ShowStats
	}
	if o.CopyToClipboard != nil {
		dst.CopyToClipboard = *o.CopyToClipboard
	}
	if o.ExportEnabled != nil {
		dst.ExportEnabled = *o.ExportEnabled
	}
	if o.StatusUpdates != nil {
		dst.StatusUpdates = *o.StatusUpdates
	}
}
