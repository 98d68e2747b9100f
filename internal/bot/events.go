package bot

import (
	"time"

	"github.com/wardenbot/warden/internal/detect"
	"github.com/wardenbot/warden/internal/event"
)

const (
	EventTypeMessage = "message"
	EventTypePhoto   = "photo"
	EventTypeReport  = "report"

	eventTTL = 5 * time.Minute
)

type (
	// MessageEvent carries one text message into the detection pipeline.
	MessageEvent struct {
		*event.Base
		Message detect.Message
	}

	// PhotoEvent carries one image for fingerprinting. FileID points at the
	// largest photo size of the message.
	PhotoEvent struct {
		*event.Base
		ChatID    int64
		UserID    int64
		MessageID int64
		FileID    string
	}

	// ReportEvent is a /report command aimed at a replied-to image.
	ReportEvent struct {
		*event.Base
		ChatID         int64
		ReporterID     int64
		ReplyMessageID int64
		Reason         string
	}
)

func NewMessageEvent(msg detect.Message) *MessageEvent {
	return &MessageEvent{
		Base:    event.CreateBase(EventTypeMessage, time.Now().Add(eventTTL)),
		Message: msg,
	}
}

func NewPhotoEvent(chatID, userID, messageID int64, fileID string) *PhotoEvent {
	return &PhotoEvent{
		Base:      event.CreateBase(EventTypePhoto, time.Now().Add(eventTTL)),
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		FileID:    fileID,
	}
}

func NewReportEvent(chatID, reporterID, replyMessageID int64, reason string) *ReportEvent {
	return &ReportEvent{
		Base:           event.CreateBase(EventTypeReport, time.Now().Add(eventTTL)),
		ChatID:         chatID,
		ReporterID:     reporterID,
		ReplyMessageID: replyMessageID,
		Reason:         reason,
	}
}
