package enhance

import (
	"fmt"
	"strings"

	"github.com/driftboard/feedback/internal/model"
)

// fallbackTemplate is one of the five canned enhancements, keyed by the
// submission's category. The templates exist so the rest of the pipeline and
// its callers are exercised identically whether or not the provider is
// reachable: a fallback result is structurally indistinguishable from a real
// one.
type fallbackTemplate struct {
	summaryPrefix string
	devQuestion   string
}

var fallbackTemplates = map[string]fallbackTemplate{
	model.CategoryBug: {
		summaryPrefix: "Bug report",
		devQuestion:   "What are the exact steps to reproduce this, and does it happen consistently?",
	},
	model.CategoryFeature: {
		summaryPrefix: "Feature request",
		devQuestion:   "What problem would this feature solve for you, and how do you work around it today?",
	},
	model.CategoryUIUX: {
		summaryPrefix: "UI/UX issue",
		devQuestion:   "On which device and screen size do you see this, and what did you expect instead?",
	},
	model.CategorySuggestion: {
		summaryPrefix: "Suggestion",
		devQuestion:   "How often does this come up in your workflow, and what would an ideal outcome look like?",
	},
	model.CategoryOther: {
		summaryPrefix: "User feedback",
		devQuestion:   "Could you share more detail about what you were trying to do when you noticed this?",
	},
}

const fallbackExcerptLen = 120

// Fallback builds the deterministic enhancement for a submission: a summary
// from the category template plus a text excerpt, a category echo, and a
// canned developer question. No network, no randomness.
func Fallback(sub *model.ValidatedSubmission) model.AIEnhancement {
	tpl, ok := fallbackTemplates[sub.Category]
	if !ok {
		tpl = fallbackTemplates[model.CategoryOther]
	}

	excerpt := sub.RawText
	if runes := []rune(excerpt); len(runes) > fallbackExcerptLen {
		excerpt = strings.TrimSpace(string(runes[:fallbackExcerptLen])) + "…"
	}

	summary := fmt.Sprintf("%s: %s", tpl.summaryPrefix, excerpt)
	category := sub.Category
	devQuestion := tpl.devQuestion

	return model.AIEnhancement{
		Summary:     &summary,
		Category:    &category,
		DevQuestion: &devQuestion,
	}
}
