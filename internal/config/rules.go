package config

import (
	"time"

	"github.com/jinzhu/configor"
	"github.com/pkg/errors"
)

type (
	// Rules is the moderation ruleset, loaded once at startup from a YAML
	// file and treated as immutable afterwards.
	Rules struct {
		ScamPatterns  []string `yaml:"scam_patterns"`
		LinkWhitelist []string `yaml:"link_whitelist"`

		TrustWeights TrustWeights `yaml:"trust_weights"`
		TrustTiers   []TierRange  `yaml:"trust_tiers"`

		TimeoutSteps     []time.Duration `yaml:"timeout_steps"`
		AutoBanThreshold int             `yaml:"auto_ban_threshold"`
		WarningTTL       time.Duration   `yaml:"warning_ttl"`
	}

	TrustWeights struct {
		AccountAge     float64 `yaml:"account_age" default:"0.20"`
		ChatAge        float64 `yaml:"chat_age" default:"0.15"`
		MessageCount   float64 `yaml:"message_count" default:"0.15"`
		MessageQuality float64 `yaml:"message_quality" default:"0.20"`
		Consistency    float64 `yaml:"consistency" default:"0.10"`
		Warnings       float64 `yaml:"warnings" default:"-0.30"`
		Reputation     float64 `yaml:"reputation" default:"0.20"`
	}

	// TierRange is a [Low, High) score bucket, except the top tier which
	// includes its upper bound.
	TierRange struct {
		Name string  `yaml:"name"`
		Low  float64 `yaml:"low"`
		High float64 `yaml:"high"`
	}
)

// DefaultRules returns the built-in ruleset used when no rules file is
// configured.
func DefaultRules() Rules {
	return Rules{
		ScamPatterns: []string{
			`free\s+nitro`,
			`t\.me/\+\S+`,
			`click\s+here\s+for`,
			`dm\s+me\s+for\s+money`,
			`investment\s+opportunity`,
			`double\s+your\s+(money|crypto)`,
			`@everyone.*http`,
		},
		LinkWhitelist: []string{
			"youtube.com",
			"github.com",
			"linkedin.com",
			"t.me",
		},
		TrustWeights: TrustWeights{
			AccountAge:     0.20,
			ChatAge:        0.15,
			MessageCount:   0.15,
			MessageQuality: 0.20,
			Consistency:    0.10,
			Warnings:       -0.30,
			Reputation:     0.20,
		},
		TrustTiers: []TierRange{
			{Name: "new", Low: 0, High: 20},
			{Name: "probation", Low: 20, High: 40},
			{Name: "member", Low: 40, High: 60},
			{Name: "trusted", Low: 60, High: 80},
			{Name: "vetted", Low: 80, High: 100},
		},
		TimeoutSteps: []time.Duration{
			5 * time.Minute,
			30 * time.Minute,
			3 * time.Hour,
			24 * time.Hour,
		},
		AutoBanThreshold: 5,
		WarningTTL:       30 * 24 * time.Hour,
	}
}

// LoadRules reads the ruleset from path, or returns the defaults when path
// is empty. The result is validated; a broken ruleset is a startup error,
// never a per-message one.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path != "" {
		if err := configor.New(&configor.Config{ErrorOnUnmatchedKeys: true}).Load(&rules, path); err != nil {
			return Rules{}, errors.Wrap(err, "load rules file")
		}
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks structural invariants: tier buckets must be contiguous
// and cover [0,100] exactly, and the punishment ladder must not be empty.
func (r Rules) Validate() error {
	if len(r.TrustTiers) == 0 {
		return errors.New("no trust tiers configured")
	}
	if r.TrustTiers[0].Low != 0 {
		return errors.Errorf("first trust tier %q must start at 0", r.TrustTiers[0].Name)
	}
	for i := 1; i < len(r.TrustTiers); i++ {
		prev, cur := r.TrustTiers[i-1], r.TrustTiers[i]
		if cur.Low != prev.High {
			return errors.Errorf("trust tier %q does not start where %q ends", cur.Name, prev.Name)
		}
		if cur.High <= cur.Low {
			return errors.Errorf("trust tier %q has empty range", cur.Name)
		}
	}
	if top := r.TrustTiers[len(r.TrustTiers)-1]; top.High != 100 {
		return errors.Errorf("top trust tier %q must end at 100", top.Name)
	}
	if len(r.TimeoutSteps) == 0 {
		return errors.New("no timeout steps configured")
	}
	if r.AutoBanThreshold <= len(r.TimeoutSteps) {
		return errors.New("auto ban threshold must exceed the timeout ladder")
	}
	if r.WarningTTL <= 0 {
		return errors.New("warning ttl must be positive")
	}
	return nil
}
