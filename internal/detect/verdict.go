package detect

import "time"

type Reason string

const (
	ReasonScamPattern      Reason = "scam-pattern"
	ReasonLink             Reason = "link"
	ReasonMentionSpam      Reason = "mention-spam"
	ReasonCapsSpam         Reason = "caps-spam"
	ReasonRateSpam         Reason = "rate-spam"
	ReasonDuplicateSpam    Reason = "duplicate-spam"
	ReasonCrossChannelSpam Reason = "cross-channel-spam"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

type (
	// Message is one inbound text event as the detector sees it.
	Message struct {
		MessageID    int64
		UserID       int64
		ChatID       int64
		Text         string
		MentionCount int
		HasMedia     bool
		At           time.Time
	}

	// Verdict is the ephemeral result of one detection pass. Degraded marks
	// a pass that could not consult persistence; consumers should not
	// punish the user for a degraded-only flag.
	Verdict struct {
		IsSpam      bool
		Reasons     []Reason
		Severity    string
		ContentHash string
		Degraded    bool
	}
)

func (v *Verdict) add(reason Reason) {
	v.IsSpam = true
	v.Reasons = append(v.Reasons, reason)
}

func (v *Verdict) Has(reason Reason) bool {
	for _, r := range v.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}
