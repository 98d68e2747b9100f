package db

import "time"

type (
	// UserMeta is the per-user aggregate the trust scorer reads. FirstSeenAt
	// stands in for account age on platforms that do not expose account
	// creation dates.
	UserMeta struct {
		ID             int64      `db:"id"`
		UserName       string     `db:"username"`
		DisplayName    string     `db:"display_name"`
		IsBot          bool       `db:"is_bot"`
		FirstSeenAt    *time.Time `db:"first_seen_at"`
		JoinedAt       *time.Time `db:"joined_at"`
		TotalMessages  int64      `db:"total_messages"`
		TotalReactions int64      `db:"total_reactions"`
		StreakDays     int        `db:"streak_days"`
		Reputation     float64    `db:"reputation"`
		LastMessageAt  *time.Time `db:"last_message_at"`
	}

	TrustRecord struct {
		UserID         int64     `db:"user_id"`
		Overall        float64   `db:"overall_score"`
		AccountAge     float64   `db:"account_age_score"`
		ChatAge        float64   `db:"chat_age_score"`
		MessageCount   float64   `db:"message_count_score"`
		MessageQuality float64   `db:"message_quality_score"`
		Consistency    float64   `db:"consistency_score"`
		WarningPenalty float64   `db:"warning_penalty"`
		Reputation     float64   `db:"reputation_score"`
		Tier           string    `db:"trust_tier"`
		LastCalculated time.Time `db:"last_calculated"`
	}

	MessageEvent struct {
		MessageID    int64     `db:"message_id"`
		UserID       int64     `db:"user_id"`
		ChatID       int64     `db:"chat_id"`
		ContentHash  string    `db:"content_hash"`
		MentionCount int       `db:"mention_count"`
		HasMedia     bool      `db:"has_media"`
		CreatedAt    time.Time `db:"created_at"`
	}

	// Fingerprint hashes are stored as 16-char hex strings, keyed unique by
	// the perceptual hash.
	Fingerprint struct {
		ID                 int64     `db:"id"`
		DHash              string    `db:"dhash"`
		PHash              string    `db:"phash"`
		AHash              string    `db:"ahash"`
		IsSpam             bool      `db:"is_spam"`
		SpamCategory       string    `db:"spam_category"`
		ReportCount        int       `db:"report_count"`
		TimesPosted        int       `db:"times_posted"`
		UniquePosters      int       `db:"unique_posters"`
		FirstSeenUserID    int64     `db:"first_seen_user_id"`
		FirstSeenChatID    int64     `db:"first_seen_chat_id"`
		FirstSeenMessageID int64     `db:"first_seen_message_id"`
		FirstSeenAt        time.Time `db:"first_seen_at"`
	}

	ImageReport struct {
		ID            string    `db:"id"`
		FingerprintID int64     `db:"fingerprint_id"`
		ReporterID    int64     `db:"reporter_id"`
		Reason        string    `db:"reason"`
		ReportedAt    time.Time `db:"reported_at"`
	}

	Warning struct {
		ID        int64      `db:"id"`
		UserID    int64      `db:"user_id"`
		ChatID    int64      `db:"chat_id"`
		Reason    string     `db:"reason"`
		Severity  string     `db:"severity"`
		IssuedBy  int64      `db:"issued_by"`
		IssuedAt  time.Time  `db:"issued_at"`
		ExpiresAt *time.Time `db:"expires_at"`
		CaseRef   string     `db:"case_ref"`
	}

	Case struct {
		ID          int64      `db:"id"`
		Ref         string     `db:"ref"`
		CaseType    string     `db:"case_type"`
		UserID      int64      `db:"user_id"`
		ChatID      int64      `db:"chat_id"`
		MessageID   int64      `db:"message_id"`
		Reason      string     `db:"reason"`
		Evidence    string     `db:"evidence"`
		ActionTaken string     `db:"action_taken"`
		CreatedBy   int64      `db:"created_by"`
		CreatedAt   time.Time  `db:"created_at"`
		ResolvedAt  *time.Time `db:"resolved_at"`
	}
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	CaseTypeWarning = "warning"
	CaseTypeTimeout = "timeout"
	CaseTypeBan     = "ban"
	CaseTypeNote    = "note"
)
