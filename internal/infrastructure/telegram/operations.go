package telegram

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
)

// Operations wraps the raw bot API with the moderation actions the case
// manager needs.
type Operations struct {
	bot *api.BotAPI
}

func NewOperations(bot *api.BotAPI) *Operations {
	return &Operations{bot: bot}
}

// DeleteMessage deletes a message from a chat
func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_ = ctx
	if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return errors.Wrap(err, "failed to delete message")
	}
	return nil
}

// RestrictUser mutes a user until the given time.
func (o *Operations) RestrictUser(ctx context.Context, chatID, userID int64, until time.Time) error {
	_ = ctx
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		UntilDate:   until.Unix(),
		Permissions: &api.ChatPermissions{},

		UseIndependentChatPermissions: true,
	}
	if _, err := o.bot.Request(config); err != nil {
		return wrapPrivilege(err, "failed to restrict user")
	}
	return nil
}

// UnrestrictUser lifts a mute early.
func (o *Operations) UnrestrictUser(ctx context.Context, chatID, userID int64) error {
	_ = ctx
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		UntilDate: 0,
		Permissions: &api.ChatPermissions{
			CanSendMessages:       true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		},
	}
	if _, err := o.bot.Request(config); err != nil {
		return wrapPrivilege(err, "failed to unrestrict user")
	}
	return nil
}

// BanUser permanently removes a user from a chat and revokes their
// messages.
func (o *Operations) BanUser(ctx context.Context, chatID, userID int64) error {
	_ = ctx
	config := api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		RevokeMessages: true,
	}
	if _, err := o.bot.Request(config); err != nil {
		return wrapPrivilege(err, "failed to ban user")
	}
	return nil
}

// UnbanUser lifts a ban.
func (o *Operations) UnbanUser(ctx context.Context, chatID, userID int64) error {
	_ = ctx
	config := api.UnbanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	}
	if _, err := o.bot.Request(config); err != nil {
		return errors.Wrap(err, "failed to unban user")
	}
	return nil
}

// Announce posts a plain text notice to a chat.
func (o *Operations) Announce(ctx context.Context, chatID int64, text string) error {
	_ = ctx
	if _, err := o.bot.Send(api.NewMessage(chatID, text)); err != nil {
		return errors.Wrap(err, "failed to send notice")
	}
	return nil
}

func wrapPrivilege(err error, msg string) error {
	if strings.Contains(err.Error(), "not enough rights") {
		return errors.Wrap(err, "bot lacks admin rights")
	}
	return errors.Wrap(err, msg)
}
