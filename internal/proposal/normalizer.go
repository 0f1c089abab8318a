package proposal

import (
	"regexp"
	"strconv"
	"strings"
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

const numeralPattern = `(\d{1,3}|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`

// Normalize turns free roadmap text into the profile every later stage consumes.
func Normalize(cfg Config, in RoadmapInput) (NormalizedProfile, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return NormalizedProfile{}, NewInvalidInput("description", "is required")
	}
	text := desc
	hint := strings.TrimSpace(in.ProjectType)
	if hint != "" {
		text = hint + "\n" + desc
	}

	features := MatchVocabulary(text, cfg.FeatureVocabulary)
	tier := Classify(text, cfg.ComplexityRules, cfg.DefaultComplexity)
	if t := ComplexityTier(strings.ToLower(hint)); t.Valid() {
		tier = t
	}
	hours, err := EstimateBackendHours(cfg, tier, len(features))
	if err != nil {
		return NormalizedProfile{}, err
	}

	model := ModelSubscription
	if len(cfg.BusinessModelRules) > 0 {
		model = Classify(text, cfg.BusinessModelRules, cfg.BusinessModelRules[0].Result)
	}
	market := strings.ToLower(strings.TrimSpace(in.Industry))
	if market == "" {
		market = Classify(text, cfg.MarketRules, cfg.DefaultMarket)
	}

	multi, phases := detectPhases(cfg, text, tier)
	return NormalizedProfile{
		Features:               features,
		Complexity:             tier,
		EstimatedBackendHours:  hours,
		BusinessModel:          model,
		MarketCategory:         market,
		ComplianceRequirements: detectCompliance(text, cfg.ComplianceStandards),
		EnterpriseFeatures:     MatchVocabulary(text, cfg.EnterpriseVocabulary),
		MultiPhase:             multi,
		PhaseCount:             phases,
	}, nil
}

// EstimateBackendHours scales the tier's base hours by feature count and rounds to the hours unit.
func EstimateBackendHours(cfg Config, tier ComplexityTier, featureCount int) (int, error) {
	base, ok := cfg.BaseHours[tier]
	if !ok {
		return 0, NewInvalidInput("complexity", "unknown tier "+strconv.Quote(string(tier)))
	}
	if cfg.Rounding.HoursUnit <= 0 {
		return 0, NewConfigurationError("rounding.hours_unit", "must be positive")
	}
	factor := max(1, cfg.FeatureHoursFactor*float64(featureCount))
	return roundToInt(float64(base)*factor, cfg.Rounding.HoursUnit), nil
}

func detectCompliance(text string, standards []ComplianceStandard) []string {
	vocab := make([]Term, 0, len(standards))
	for _, s := range standards {
		vocab = append(vocab, Term{Name: s.Name, Keywords: s.Keywords})
	}
	return MatchVocabulary(text, vocab)
}

func detectPhases(cfg Config, text string, tier ComplexityTier) (bool, int) {
	lower := strings.ToLower(text)
	if !containsAny(lower, cfg.PhaseKeywords) {
		return false, 1
	}
	count := largestPhaseNumeral(lower, cfg.PhaseKeywords, cfg.MaxPhaseCount)
	if count < 2 {
		count = cfg.DefaultPhaseCount[tier]
	}
	if count < 2 {
		count = 2
	}
	return true, count
}

// largestPhaseNumeral finds "3 phases", "three-phase" and "phase 4" style mentions.
// Numerals below 2 or above limit are ignored.
func largestPhaseNumeral(lower string, phaseWords []string, limit int) int {
	quoted := make([]string, 0, len(phaseWords))
	for _, w := range phaseWords {
		if w = strings.TrimSpace(strings.ToLower(w)); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return 0
	}
	word := `(?:` + strings.Join(quoted, "|") + `)s?`
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`\b` + numeralPattern + `[\s-]+` + word + `\b`),
		regexp.MustCompile(`\b` + word + `\s*#?\s*` + numeralPattern + `\b`),
	}
	best := 0
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			n := parseNumeral(m[1])
			if n >= 2 && (limit <= 0 || n <= limit) && n > best {
				best = n
			}
		}
	}
	return best
}

func parseNumeral(s string) int {
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
