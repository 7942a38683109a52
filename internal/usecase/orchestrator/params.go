package orchestrator

import (
	"regexp"
	"sort"
	"strings"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

// urlPattern is deliberately permissive: anything scheme-prefixed up to
// the next whitespace or quote counts as a URL. Validation is the
// browser's job, not ours.
var urlPattern = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s"'<>]+`)

var slashCommandPattern = regexp.MustCompile(`(?m)(/[a-z][a-z0-9_-]*(?:\s+\S+)*)`)

// compoundSeparators split a two-phase description into the primary
// task and the extraction hint. Checked in order; first hit wins.
var compoundSeparators = []string{" and then ", ", then ", " then ", " afterwards "}

// queryLeadIns are the research-style lead-in phrases stripped from a
// query payload. The research template also uses them as its triggers.
var queryLeadIns = []string{"search for", "research", "look up", "find information", "what is"}

func containsURL(lowered string) bool {
	return urlPattern.MatchString(lowered)
}

func firstURL(description string) string {
	return strings.TrimRight(urlPattern.FindString(description), ".,;)")
}

// ExtractParams derives call parameters from the free-text description
// according to the template's extraction mode, layered over the
// template's default parameters.
func ExtractParams(t *domain.TaskTemplate, description string) map[string]any {
	params := make(map[string]any, len(t.DefaultParams)+2)
	for k, v := range t.DefaultParams {
		params[k] = v
	}
	switch t.ParamMode {
	case domain.ParamModeQuery:
		if q := stripPhrases(plainTriggers(t), description); q != "" {
			params["query"] = q
		}
	case domain.ParamModeURL:
		if u := firstURL(description); u != "" {
			params["url"] = u
		}
	case domain.ParamModeTwoPhase:
		primary, hint := splitCompound(description)
		// The primary side reads like a research request, so the shared
		// lead-ins are stripped along with the template's own triggers.
		if q := stripPhrases(append(plainTriggers(t), queryLeadIns...), primary); q != "" {
			params["query"] = q
		}
		if hint != "" {
			params["extract_hint"] = hint
		}
	case domain.ParamModeCommand:
		if cmd := slashCommandPattern.FindString(description); cmd != "" {
			params["command"] = strings.TrimSpace(cmd)
		}
	}
	return params
}

// splitCompound divides a description at the first compound separator.
// The hint side is returned verbatim apart from trimming.
func splitCompound(description string) (primary, hint string) {
	lowered := strings.ToLower(description)
	for _, sep := range compoundSeparators {
		if idx := strings.Index(lowered, sep); idx >= 0 {
			return strings.TrimSpace(description[:idx]), strings.TrimSpace(description[idx+len(sep):])
		}
	}
	return strings.TrimSpace(description), ""
}

// stripPhrases removes known trigger phrases from the description so
// the remainder can serve as the payload. Longer phrases go first so
// "search for" is removed before "search" could leave a dangling "for".
func stripPhrases(phrases []string, description string) string {
	sort.Slice(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })
	out := description
	for _, phrase := range phrases {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
		if err != nil {
			continue
		}
		out = re.ReplaceAllString(out, " ")
	}
	out = strings.Join(strings.Fields(out), " ")
	return strings.Trim(out, " ?.!,")
}

// plainTriggers returns the template's substring triggers, excluding
// the regex family.
func plainTriggers(t *domain.TaskTemplate) []string {
	out := make([]string, 0, len(t.TriggerPatterns))
	for _, p := range t.TriggerPatterns {
		if !isRegexTrigger(p) {
			out = append(out, p)
		}
	}
	return out
}

// ScoreTemplates ranks every template by keyword overlap with the
// description: the fraction of the template's trigger vocabulary that
// appears in the text. Used for the no-match suggestion payload.
func ScoreTemplates(templates []*domain.TaskTemplate, description string) []domain.TemplateScore {
	descWords := wordSet(strings.ToLower(description))
	scores := make([]domain.TemplateScore, 0, len(templates))
	for _, t := range templates {
		vocab := wordSet(strings.ToLower(strings.Join(plainTriggers(t), " ")))
		hits := 0
		for w := range vocab {
			if descWords[w] {
				hits++
			}
		}
		score := 0.0
		if len(vocab) > 0 {
			score = float64(hits) / float64(len(vocab))
		}
		scores = append(scores, domain.TemplateScore{
			Name:        t.Name,
			Description: t.Description,
			Score:       score,
		})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, " ?.!,:;\"'")
		if w != "" {
			set[w] = true
		}
	}
	return set
}
