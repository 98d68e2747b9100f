package trust

import (
	"math"
	"time"

	"github.com/wardenbot/warden/internal/config"
)

const (
	TierNew       = "new"
	TierProbation = "probation"
	TierMember    = "member"
	TierTrusted   = "trusted"
	TierVetted    = "vetted"
)

type (
	// Components holds the seven sub-scores and the weighted overall score.
	// Every sub-score lies in [0,100] except WarningPenalty, which lies in
	// [-50,0] and pulls the overall down.
	Components struct {
		AccountAge     float64
		ChatAge        float64
		MessageCount   float64
		MessageQuality float64
		Consistency    float64
		WarningPenalty float64
		Reputation     float64
		Overall        float64
		Tier           string
		LastCalculated time.Time
	}

	WarningInput struct {
		Severity string
		IssuedAt time.Time
	}

	// Inputs are the raw facts the calculator normalizes. Nil timestamps
	// mean "unknown" and score as the most conservative value.
	Inputs struct {
		AccountCreatedAt *time.Time
		JoinedAt         *time.Time
		TotalMessages    int64
		TotalReactions   int64
		StreakDays       int
		Warnings         []WarningInput
		Reputation       float64
	}

	Calculator struct {
		weights          config.TrustWeights
		tiers            []config.TierRange
		minReactionRatio float64
		warningDecayDays int
	}
)

func NewCalculator(rules config.Rules, cfg config.Trust) *Calculator {
	return &Calculator{
		weights:          rules.TrustWeights,
		tiers:            rules.TrustTiers,
		minReactionRatio: cfg.MinReactionRatio,
		warningDecayDays: cfg.WarningDecayDays,
	}
}

// Calculate normalizes every input through a monotonic capped curve,
// combines them with the configured weights and clamps to [0,100]. It never
// fails: missing inputs score as the newest/lowest value.
func (c *Calculator) Calculate(inputs Inputs, now time.Time) Components {
	components := Components{
		AccountAge:     accountAgeScore(inputs.AccountCreatedAt, now),
		ChatAge:        chatAgeScore(inputs.JoinedAt, now),
		MessageCount:   messageCountScore(inputs.TotalMessages),
		MessageQuality: c.messageQualityScore(inputs.TotalMessages, inputs.TotalReactions),
		Consistency:    consistencyScore(inputs.StreakDays),
		WarningPenalty: c.warningPenalty(inputs.Warnings, now),
		Reputation:     clamp(inputs.Reputation, 0, 100),
		LastCalculated: now,
	}

	overall := components.AccountAge*math.Abs(c.weights.AccountAge) +
		components.ChatAge*math.Abs(c.weights.ChatAge) +
		components.MessageCount*math.Abs(c.weights.MessageCount) +
		components.MessageQuality*math.Abs(c.weights.MessageQuality) +
		components.Consistency*math.Abs(c.weights.Consistency) +
		components.WarningPenalty*math.Abs(c.weights.Warnings) +
		components.Reputation*math.Abs(c.weights.Reputation)

	components.Overall = clamp(overall, 0, 100)
	components.Tier = c.TierFor(components.Overall)
	return components
}

// TierFor maps a score to its bucket. Buckets are [low, high); the top
// bucket also includes its upper bound, so 100 maps to the highest tier.
func (c *Calculator) TierFor(score float64) string {
	for _, tier := range c.tiers {
		if score >= tier.Low && score < tier.High {
			return tier.Name
		}
	}
	return c.tiers[len(c.tiers)-1].Name
}

// StrictnessMultiplier scales detector thresholds by trust tier, from 1.0
// for the lowest tier down to 0.4 for the highest. Unknown tiers stay at
// full strictness.
func (c *Calculator) StrictnessMultiplier(tier string) float64 {
	idx := -1
	for i, t := range c.tiers {
		if t.Name == tier {
			idx = i
			break
		}
	}
	if idx <= 0 || len(c.tiers) < 2 {
		return 1.0
	}
	return 1.0 - 0.6*float64(idx)/float64(len(c.tiers)-1)
}

// Account age curve: <30d maps to 0..30, 30..180d to 30..60, beyond that
// 60..100 capped.
func accountAgeScore(createdAt *time.Time, now time.Time) float64 {
	if createdAt == nil {
		return 0
	}
	days := now.Sub(*createdAt).Hours() / 24
	switch {
	case days < 0:
		return 0
	case days < 30:
		return days / 30 * 30
	case days < 180:
		return 30 + (days-30)/150*30
	default:
		return math.Min(100, 60+(days-180)/180*40)
	}
}

// Chat age curve: <7d maps to 0..20, 7..30d to 20..50, beyond that 50..100
// capped.
func chatAgeScore(joinedAt *time.Time, now time.Time) float64 {
	if joinedAt == nil {
		return 0
	}
	days := now.Sub(*joinedAt).Hours() / 24
	switch {
	case days < 0:
		return 0
	case days < 7:
		return days / 7 * 20
	case days < 30:
		return 20 + (days-7)/23*30
	default:
		return math.Min(100, 50+(days-30)/60*50)
	}
}

// Message count curve: <50 maps to 0..30, 50..500 to 30..70, beyond that
// 70..100 capped.
func messageCountScore(count int64) float64 {
	n := float64(count)
	switch {
	case n < 50:
		return n / 50 * 30
	case n < 500:
		return 30 + (n-50)/450*40
	default:
		return math.Min(100, 70+(n-500)/1000*30)
	}
}

// Quality is the reactions-per-message ratio against the expected ratio.
// Below expectation the score tops out at 30.
func (c *Calculator) messageQualityScore(messages, reactions int64) float64 {
	if messages == 0 {
		return 0
	}
	ratio := float64(reactions) / float64(messages)
	if ratio >= c.minReactionRatio {
		return math.Min(100, ratio/c.minReactionRatio*100)
	}
	return ratio / c.minReactionRatio * 30
}

// Consistency curve: streak <7d maps to 0..20, 7..30d to 20..50, beyond
// that 50..100 capped.
func consistencyScore(streakDays int) float64 {
	days := float64(streakDays)
	switch {
	case days < 7:
		return math.Min(20, days/7*20)
	case days < 30:
		return 20 + (days-7)/23*30
	default:
		return math.Min(100, 50+(days-30)/60*50)
	}
}

// Each warning costs 15 points, scaled by severity. Warnings older than the
// decay window lose weight down to a 0.2 floor. The total penalty is capped
// at -50.
func (c *Calculator) warningPenalty(warnings []WarningInput, now time.Time) float64 {
	if len(warnings) == 0 {
		return 0
	}

	total := 0.0
	for _, warning := range warnings {
		penalty := -15.0
		switch warning.Severity {
		case "critical":
			penalty *= 3
		case "high":
			penalty *= 2
		case "medium":
			penalty *= 1.5
		}

		daysOld := now.Sub(warning.IssuedAt).Hours() / 24
		if daysOld > float64(c.warningDecayDays) {
			decay := math.Max(0.2, 1-(daysOld-float64(c.warningDecayDays))/60)
			penalty *= decay
		}
		total += penalty
	}
	return math.Max(-50, total)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
