package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iamwavecut/tool"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/db"
	"github.com/wardenbot/warden/internal/detect"
)

const (
	ActionWarn    = "warn"
	ActionTimeout = "timeout"
	ActionBan     = "ban"
	ActionNone    = "none"
)

type actions interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	RestrictUser(ctx context.Context, chatID, userID int64, until time.Time) error
	BanUser(ctx context.Context, chatID, userID int64) error
	Announce(ctx context.Context, chatID int64, text string) error
}

type store interface {
	AddWarning(ctx context.Context, warning *db.Warning) (int64, error)
	GetActiveWarningCount(ctx context.Context, userID int64) (int, error)
	CreateCase(ctx context.Context, c *db.Case) (*db.Case, error)
}

type (
	// Offense is one punishable incident, regardless of which detector
	// produced it.
	Offense struct {
		UserID    int64
		ChatID    int64
		MessageID int64
		Reason    string
		Severity  string
		Evidence  string
		IssuedBy  int64
	}

	// Outcome describes what the ladder decided for this offense.
	Outcome struct {
		CaseRef      string
		WarningCount int
		Action       string
		TimeoutUntil time.Time
	}

	// Manager turns verdicts into warnings, cases and Telegram-side
	// punishments along the escalation ladder.
	Manager struct {
		rules  config.Rules
		store  store
		acts   actions
		logger *log.Entry
	}
)

func NewManager(rules config.Rules, store store, acts actions) *Manager {
	return &Manager{
		rules:  rules,
		store:  store,
		acts:   acts,
		logger: log.WithField("context", "moderation"),
	}
}

// HandleSpamVerdict deletes the flagged message and walks the user up the
// ladder. A degraded pass with no concrete reasons only removes the
// message; the user keeps a clean record because nothing was proven.
func (m *Manager) HandleSpamVerdict(ctx context.Context, msg detect.Message, verdict *detect.Verdict) (*Outcome, error) {
	if verdict == nil || !verdict.IsSpam {
		return &Outcome{Action: ActionNone}, nil
	}

	if err := m.acts.DeleteMessage(ctx, msg.ChatID, int(msg.MessageID)); err != nil {
		m.logger.WithError(err).WithField("chat_id", msg.ChatID).Warn("failed to delete message")
	}

	if verdict.Degraded && len(verdict.Reasons) == 0 {
		m.logger.WithField("user_id", msg.UserID).Info("message held on degraded pass, no warning issued")
		return &Outcome{Action: ActionNone}, nil
	}

	reasons := make([]string, 0, len(verdict.Reasons))
	for _, r := range verdict.Reasons {
		reasons = append(reasons, string(r))
	}

	return m.Punish(ctx, Offense{
		UserID:    msg.UserID,
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		Reason:    strings.Join(reasons, ", "),
		Severity:  verdict.Severity,
		Evidence:  "content_hash=" + verdict.ContentHash,
	})
}

// HandleSpamImage removes a message carrying a known-spam image and warns
// the poster.
func (m *Manager) HandleSpamImage(ctx context.Context, chatID, userID, messageID int64, category string) (*Outcome, error) {
	if err := m.acts.DeleteMessage(ctx, chatID, int(messageID)); err != nil {
		m.logger.WithError(err).WithField("chat_id", chatID).Warn("failed to delete message")
	}
	return m.Punish(ctx, Offense{
		UserID:    userID,
		ChatID:    chatID,
		MessageID: messageID,
		Reason:    "known spam image",
		Severity:  db.SeverityHigh,
		Evidence:  "spam_category=" + category,
	})
}

// Punish records a warning, counts the active ones and applies the step the
// count lands on: timeouts up the configured ladder, a ban at the
// threshold.
func (m *Manager) Punish(ctx context.Context, offense Offense) (*Outcome, error) {
	ref := uuid.New()
	now := time.Now()
	expires := now.Add(m.rules.WarningTTL)

	if _, err := m.store.AddWarning(ctx, &db.Warning{
		UserID:    offense.UserID,
		ChatID:    offense.ChatID,
		Reason:    offense.Reason,
		Severity:  severityOrDefault(offense.Severity),
		IssuedBy:  offense.IssuedBy,
		IssuedAt:  now,
		ExpiresAt: &expires,
		CaseRef:   ref,
	}); err != nil {
		return nil, errors.Wrap(err, "add warning")
	}

	count, err := m.store.GetActiveWarningCount(ctx, offense.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "count warnings")
	}

	outcome := &Outcome{CaseRef: ref, WarningCount: count}
	caseType := db.CaseTypeWarning

	switch {
	case count >= m.rules.AutoBanThreshold:
		outcome.Action = ActionBan
		caseType = db.CaseTypeBan
		if err := m.acts.BanUser(ctx, offense.ChatID, offense.UserID); err != nil {
			m.logger.WithError(err).WithField("user_id", offense.UserID).Error("failed to ban user")
		}
	default:
		step := count
		if step > len(m.rules.TimeoutSteps) {
			step = len(m.rules.TimeoutSteps)
		}
		until := now.Add(m.rules.TimeoutSteps[step-1])
		outcome.Action = ActionTimeout
		outcome.TimeoutUntil = until
		caseType = db.CaseTypeTimeout
		if err := m.acts.RestrictUser(ctx, offense.ChatID, offense.UserID, until); err != nil {
			m.logger.WithError(err).WithField("user_id", offense.UserID).Error("failed to restrict user")
		}
	}

	if _, err := m.store.CreateCase(ctx, &db.Case{
		Ref:         ref,
		CaseType:    caseType,
		UserID:      offense.UserID,
		ChatID:      offense.ChatID,
		MessageID:   offense.MessageID,
		Reason:      offense.Reason,
		Evidence:    offense.Evidence,
		ActionTaken: outcome.Action,
		CreatedBy:   offense.IssuedBy,
		CreatedAt:   now,
	}); err != nil {
		return nil, errors.Wrap(err, "create case")
	}

	if err := m.acts.Announce(ctx, offense.ChatID, m.notice(offense, outcome)); err != nil {
		m.logger.WithError(err).Warn("failed to post notice")
	}

	m.logger.WithField("user_id", offense.UserID).
		WithField("case_ref", ref).
		WithField("action", outcome.Action).
		Info("offense handled")

	return outcome, nil
}

func (m *Manager) notice(offense Offense, outcome *Outcome) string {
	switch outcome.Action {
	case ActionBan:
		return fmt.Sprintf("User banned after %d warnings (%s). Case %s.", outcome.WarningCount, offense.Reason, outcome.CaseRef)
	case ActionTimeout:
		return fmt.Sprintf("Warning %d/%d issued (%s), timed out until %s. Case %s.",
			outcome.WarningCount, m.rules.AutoBanThreshold, offense.Reason,
			outcome.TimeoutUntil.UTC().Format(time.RFC3339), outcome.CaseRef)
	default:
		return fmt.Sprintf("Warning issued (%s). Case %s.", offense.Reason, outcome.CaseRef)
	}
}

func severityOrDefault(severity string) string {
	if tool.In(severity, db.SeverityLow, db.SeverityMedium, db.SeverityHigh, db.SeverityCritical) {
		return severity
	}
	return db.SeverityMedium
}
