package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/detect"
	werrors "github.com/wardenbot/warden/internal/errors"
	"github.com/wardenbot/warden/internal/event"
	"github.com/wardenbot/warden/internal/fingerprint"
	"github.com/wardenbot/warden/internal/infrastructure/telegram"
	"github.com/wardenbot/warden/internal/moderation"
	"github.com/wardenbot/warden/internal/trust"
)

const (
	eventHandleTimeout = 30 * time.Second
	recentCacheSize    = 4096
)

// Pipeline is the consumer side of the event bus: it runs detection,
// fingerprinting and moderation for the events the update processor
// enqueued.
type Pipeline struct {
	s        Service
	detector *detect.Detector
	scorer   *trust.Scorer
	engine   *fingerprint.Engine
	manager  *moderation.Manager
	ops      *telegram.Operations
	cfg      config.Fingerprint
	client   *http.Client
	recent   *recentFingerprints
	logger   *log.Entry
}

func NewPipeline(
	s Service,
	detector *detect.Detector,
	scorer *trust.Scorer,
	engine *fingerprint.Engine,
	manager *moderation.Manager,
	ops *telegram.Operations,
	cfg config.Fingerprint,
) *Pipeline {
	return &Pipeline{
		s:        s,
		detector: detector,
		scorer:   scorer,
		engine:   engine,
		manager:  manager,
		ops:      ops,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.DownloadTimeout},
		recent:   newRecentFingerprints(recentCacheSize),
		logger:   log.WithField("context", "pipeline"),
	}
}

// Attach subscribes the pipeline handlers on the worker. Call before the
// worker starts.
func (p *Pipeline) Attach(w *event.Worker) {
	w.Subscribe(EventTypeMessage, func(e event.Queueable) {
		ev, ok := e.(*MessageEvent)
		if !ok {
			e.Drop()
			return
		}
		p.withTimeout(func(ctx context.Context) { p.handleMessage(ctx, ev) })
		e.Process()
	})
	w.Subscribe(EventTypePhoto, func(e event.Queueable) {
		ev, ok := e.(*PhotoEvent)
		if !ok {
			e.Drop()
			return
		}
		p.withTimeout(func(ctx context.Context) { p.handlePhoto(ctx, ev) })
		e.Process()
	})
	w.Subscribe(EventTypeReport, func(e event.Queueable) {
		ev, ok := e.(*ReportEvent)
		if !ok {
			e.Drop()
			return
		}
		p.withTimeout(func(ctx context.Context) { p.handleReport(ctx, ev) })
		e.Process()
	})
}

func (p *Pipeline) withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), eventHandleTimeout)
	defer cancel()
	fn(ctx)
}

func (p *Pipeline) handleMessage(ctx context.Context, ev *MessageEvent) {
	tier := p.scorer.TierOf(ctx, ev.Message.UserID)
	verdict := p.detector.Evaluate(ctx, ev.Message, tier)
	if !verdict.IsSpam {
		return
	}

	outcome, err := p.manager.HandleSpamVerdict(ctx, ev.Message, &verdict)
	if err != nil {
		p.logger.WithError(err).WithField("user_id", ev.Message.UserID).Error("failed to handle verdict")
		return
	}
	if outcome.Action != moderation.ActionNone {
		p.refreshTrust(ctx, ev.Message.UserID)
	}
}

func (p *Pipeline) handlePhoto(ctx context.Context, ev *PhotoEvent) {
	data, err := p.download(ctx, ev.FileID)
	if err != nil {
		p.logger.WithError(err).WithField("chat_id", ev.ChatID).Warn("failed to fetch photo")
		return
	}

	digest, err := p.engine.Fingerprint(data)
	if err != nil {
		if errors.Is(err, werrors.ErrDecode) || errors.Is(err, werrors.ErrInvalidInput) {
			p.logger.WithError(err).Debug("photo not fingerprintable")
			return
		}
		p.logger.WithError(err).Warn("failed to fingerprint photo")
		return
	}

	match, err := p.engine.Check(ctx, digest, fingerprint.Poster{
		UserID:    ev.UserID,
		ChatID:    ev.ChatID,
		MessageID: ev.MessageID,
	})
	if err != nil {
		p.logger.WithError(err).Warn("fingerprint check failed")
		return
	}

	p.recent.Put(ev.ChatID, ev.MessageID, match.Fingerprint.ID)

	if match.KnownSpam {
		if _, err := p.manager.HandleSpamImage(ctx, ev.ChatID, ev.UserID, ev.MessageID, match.Fingerprint.SpamCategory); err != nil {
			p.logger.WithError(err).WithField("user_id", ev.UserID).Error("failed to handle spam image")
			return
		}
		p.refreshTrust(ctx, ev.UserID)
	}
}

func (p *Pipeline) handleReport(ctx context.Context, ev *ReportEvent) {
	fingerprintID, ok := p.recent.Get(ev.ChatID, ev.ReplyMessageID)
	if !ok {
		p.announce(ctx, ev.ChatID, "No tracked image found in the replied message.")
		return
	}

	result, err := p.engine.Report(ctx, fingerprintID, ev.ReporterID, ev.Reason)
	if err != nil {
		if errors.Is(err, werrors.ErrNotFound) {
			p.announce(ctx, ev.ChatID, "No tracked image found in the replied message.")
			return
		}
		p.logger.WithError(err).Warn("failed to file report")
		return
	}

	switch {
	case result.Duplicate:
		p.announce(ctx, ev.ChatID, "Your report for this image is already counted.")
	case result.AutoBlocked:
		p.announce(ctx, ev.ChatID, "Image blocked after community reports. Thank you.")
	default:
		p.announce(ctx, ev.ChatID, fmt.Sprintf("Report recorded (%d/%d).", result.ReportCount, result.Threshold))
	}
}

func (p *Pipeline) refreshTrust(ctx context.Context, userID int64) {
	if _, err := p.scorer.Recalculate(ctx, userID); err != nil {
		p.logger.WithError(err).WithField("user_id", userID).Warn("failed to refresh trust")
	}
}

func (p *Pipeline) announce(ctx context.Context, chatID int64, text string) {
	if err := p.ops.Announce(ctx, chatID, text); err != nil {
		p.logger.WithError(err).Warn("failed to announce")
	}
}

func (p *Pipeline) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := p.s.GetBot().GetFileDirectURL(fileID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve file url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch file")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	return data, nil
}
