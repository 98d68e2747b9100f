package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/db"
	"github.com/wardenbot/warden/internal/history"
	"github.com/wardenbot/warden/internal/observability"
)

// Signals below their individual threshold still add up; past this combined
// weight the message is flagged anyway.
const combinedSignalThreshold = 1.5

type strictness interface {
	StrictnessMultiplier(tier string) float64
}

// Detector runs the ordered check pipeline over one message. It holds no
// per-message state and is safe for concurrent use.
type Detector struct {
	cfg       config.Detection
	patterns  []*regexp.Regexp
	whitelist []string
	history   *history.Store
	tiers     strictness
	logger    *log.Entry
}

// NewDetector compiles the configured scam patterns once. Patterns that do
// not compile are excluded with a warning and never evaluated per message.
func NewDetector(cfg config.Detection, rules config.Rules, hist *history.Store, tiers strictness) *Detector {
	logger := log.WithField("context", "detect")

	patterns := make([]*regexp.Regexp, 0, len(rules.ScamPatterns))
	for _, raw := range rules.ScamPatterns {
		compiled, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			logger.WithError(err).WithField("pattern", raw).Warn("invalid scam pattern excluded")
			continue
		}
		patterns = append(patterns, compiled)
	}

	whitelist := make([]string, 0, len(rules.LinkWhitelist))
	for _, domain := range rules.LinkWhitelist {
		whitelist = append(whitelist, strings.ToLower(strings.TrimPrefix(domain, "www.")))
	}

	return &Detector{
		cfg:       cfg,
		patterns:  patterns,
		whitelist: whitelist,
		history:   hist,
		tiers:     tiers,
		logger:    logger,
	}
}

// Evaluate records the message event into the behavior history and runs the
// check pipeline, short-circuiting on high-confidence matches. The event is
// recorded before any verdict so deleting a flagged message does not erase
// the rate-limiting memory.
func (d *Detector) Evaluate(ctx context.Context, msg Message, tier string) Verdict {
	ctx, span := otel.Tracer("spam-detector").Start(ctx, "evaluate")
	defer span.End()

	done := observability.StartMessageProcessing()
	verdict := Verdict{Severity: SeverityLow, ContentHash: HashContent(msg.Text)}
	defer func() {
		status := "clean"
		if verdict.IsSpam {
			status = "spam"
		}
		done(status)
	}()

	storeCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	defer cancel()
	if err := d.history.Record(storeCtx, &db.MessageEvent{
		MessageID:    msg.MessageID,
		UserID:       msg.UserID,
		ChatID:       msg.ChatID,
		ContentHash:  verdict.ContentHash,
		MentionCount: msg.MentionCount,
		HasMedia:     msg.HasMedia,
		CreatedAt:    msg.At,
	}); err != nil {
		verdict.Degraded = true
		observability.RecordPipelineDegradation("history_store")
		d.logger.WithError(err).WithFields(log.Fields{
			"user_id": msg.UserID,
			"chat_id": msg.ChatID,
		}).Error("moderation pipeline degraded: history write failed")
		if !d.cfg.FailOpen {
			verdict.IsSpam = true
			return verdict
		}
	}

	multiplier := d.tiers.StrictnessMultiplier(tier)
	soft := 0.0
	softReasons := make([]Reason, 0, 4)

	// Scam patterns flag regardless of trust tier.
	if d.matchScamPattern(msg.Text) {
		verdict.add(ReasonScamPattern)
		verdict.Severity = SeverityHigh
		observability.RecordSpamDetection(string(ReasonScamPattern))
		return verdict
	}

	if hosts := d.foreignHosts(msg.Text); len(hosts) > 0 {
		threshold := adjusted(d.cfg.MaxLinks, multiplier)
		if len(hosts) >= threshold {
			verdict.add(ReasonLink)
			// A bare link with no surrounding text is a high-confidence hit.
			if isOnlyLinks(msg.Text) {
				verdict.Severity = SeverityHigh
				observability.RecordSpamDetection(string(ReasonLink))
				return verdict
			}
		} else {
			soft += fraction(len(hosts), threshold)
			softReasons = append(softReasons, ReasonLink)
		}
	}

	if threshold := adjusted(d.cfg.MaxMentions, multiplier); msg.MentionCount > 0 {
		if msg.MentionCount > threshold {
			verdict.add(ReasonMentionSpam)
		} else {
			soft += fraction(msg.MentionCount, threshold)
			softReasons = append(softReasons, ReasonMentionSpam)
		}
	}

	if capsHit, capsFraction := d.checkContentShape(msg.Text); capsHit {
		verdict.add(ReasonCapsSpam)
	} else if capsFraction > 0 {
		soft += capsFraction
		softReasons = append(softReasons, ReasonCapsSpam)
	}

	if count := d.history.CountRecent(msg.UserID, d.cfg.RateWindow); count >= adjusted(d.cfg.RateCount, multiplier) {
		verdict.add(ReasonRateSpam)
	}

	if count := d.history.CountDuplicates(msg.UserID, verdict.ContentHash, d.cfg.DuplicateWindow); count >= adjusted(d.cfg.DuplicateCount, multiplier) {
		verdict.add(ReasonDuplicateSpam)
	}

	if count := d.history.CountDistinctChannels(msg.UserID, verdict.ContentHash, d.cfg.CrossChannelWindow); count >= adjusted(d.cfg.CrossChannelCount, multiplier) {
		verdict.add(ReasonCrossChannelSpam)
	}

	if !verdict.IsSpam && soft >= combinedSignalThreshold {
		verdict.IsSpam = true
		verdict.Reasons = append(verdict.Reasons, softReasons...)
	}

	if verdict.IsSpam {
		if len(verdict.Reasons) > 1 {
			verdict.Severity = SeverityMedium
		}
		for _, reason := range verdict.Reasons {
			observability.RecordSpamDetection(string(reason))
		}
	}
	return verdict
}

// adjusted raises a base threshold for trusted tiers: a multiplier of 0.4
// yields a 2.5x looser threshold. Multipliers never exceed 1, so higher
// trust is never stricter.
func adjusted(base int, multiplier float64) int {
	if multiplier <= 0 || multiplier > 1 {
		return base
	}
	return int(math.Ceil(float64(base) / multiplier))
}

func fraction(observed, threshold int) float64 {
	if threshold <= 0 {
		return 0
	}
	return math.Min(1, float64(observed)/float64(threshold))
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// HashContent returns the duplicate-detection hash of a message: SHA-256
// over the lowercased, whitespace-collapsed, trimmed text.
func HashContent(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = whitespaceRE.ReplaceAllString(normalized, " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
