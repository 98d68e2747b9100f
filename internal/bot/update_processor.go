package bot

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wardenbot/warden/internal/db"
	"github.com/wardenbot/warden/internal/detect"
	"github.com/wardenbot/warden/internal/event"
)

const UpdateTimeout = 5 * time.Minute

// UpdateProcessor converts raw Telegram updates into pipeline events. It
// does the bookkeeping that needs the api types (user upsert, mention
// counting) and hands everything else to the event worker.
type UpdateProcessor struct {
	s      Service
	logger *log.Entry
}

func NewUpdateProcessor(s Service) *UpdateProcessor {
	return &UpdateProcessor{
		s:      s,
		logger: log.WithField("context", "update_processor"),
	}
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat.ID == 0 {
		return nil
	}
	if msg.From.IsBot {
		return nil
	}

	sentAt := time.Unix(int64(msg.Date), 0)
	if time.Since(sentAt) > UpdateTimeout {
		up.logger.WithField("age", time.Since(sentAt)).Debug("skipping outdated update")
		return nil
	}

	if err := up.trackUser(ctx, msg.From, sentAt); tool.Try(err) {
		up.logger.WithError(err).WithField("user_id", msg.From.ID).Warn("failed to track user")
	}

	if msg.IsCommand() && msg.Command() == "report" {
		up.enqueueReport(msg)
		return nil
	}

	if len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		event.Bus.Enqueue(NewPhotoEvent(msg.Chat.ID, msg.From.ID, int64(msg.MessageID), largest.FileID))
	}

	text := strings.TrimSpace(strings.TrimSpace(msg.Text) + " " + strings.TrimSpace(msg.Caption))
	if text == "" {
		return nil
	}

	event.Bus.Enqueue(NewMessageEvent(detect.Message{
		MessageID:    int64(msg.MessageID),
		UserID:       msg.From.ID,
		ChatID:       msg.Chat.ID,
		Text:         text,
		MentionCount: countMentions(msg),
		HasMedia:     len(msg.Photo) > 0 || msg.Video != nil || msg.Document != nil || msg.Sticker != nil,
		At:           sentAt,
	}))
	return nil
}

func (up *UpdateProcessor) trackUser(ctx context.Context, from *api.User, at time.Time) error {
	client := up.s.GetDB()
	existing, err := client.GetUser(ctx, from.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		now := time.Now()
		if err := client.UpsertUser(ctx, &db.UserMeta{
			ID:          from.ID,
			UserName:    from.UserName,
			DisplayName: GetFullName(from),
			IsBot:       from.IsBot,
			FirstSeenAt: &now,
			JoinedAt:    &now,
		}); err != nil {
			return err
		}
	}
	return client.TouchUserActivity(ctx, from.ID, at)
}

func (up *UpdateProcessor) enqueueReport(msg *api.Message) {
	if msg.ReplyToMessage == nil {
		return
	}
	event.Bus.Enqueue(NewReportEvent(
		msg.Chat.ID,
		msg.From.ID,
		int64(msg.ReplyToMessage.MessageID),
		strings.TrimSpace(msg.CommandArguments()),
	))
}

func countMentions(msg *api.Message) int {
	count := 0
	entities := msg.Entities
	if len(entities) == 0 {
		entities = msg.CaptionEntities
	}
	for _, e := range entities {
		if e.Type == "mention" || e.Type == "text_mention" {
			count++
		}
	}
	return count
}

// GetUpdatesChans polls updates into a channel, advancing the offset.
func GetUpdatesChans(ctx context.Context, bot *api.BotAPI, config api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, bot.Buffer)
	chErr := make(chan error)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
				updates, err := bot.GetUpdates(config)
				if err != nil {
					chErr <- err
					return
				}

				for _, update := range updates {
					if update.UpdateID >= config.Offset {
						config.Offset = update.UpdateID + 1
						select {
						case ch <- update:
						case <-ctx.Done():
							chErr <- ctx.Err()
							return
						}
					}
				}
			}
		}
	}()

	return ch, chErr
}

func GetFullName(user *api.User) string {
	if user == nil {
		return ""
	}
	fullName := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if len(fullName) == 0 {
		fullName = user.UserName
	}
	return fullName
}
