package call

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/announcement-call/internal/config"
	"github.com/acme/announcement-call/internal/domain"
	"github.com/acme/announcement-call/internal/queue"
	"github.com/acme/announcement-call/internal/telephony"
	apperrors "github.com/acme/announcement-call/pkg/errors"
	"github.com/acme/announcement-call/pkg/logger"
)

// Lifecycle timing. Playback completion is approximated by a fixed wait
// rather than the platform's PlayCompleted callback.
const (
	MaxPollAttempts = 30
	PollInterval    = time.Second
	PlaybackWait    = 10 * time.Second

	teardownTimeout = 10 * time.Second
)

// EventPublisher receives call lifecycle events.
type EventPublisher interface {
	PublishCallEvent(ctx context.Context, event queue.CallEvent) error
}

// Service places announcement calls: create, wait for connect, play, hang up.
type Service struct {
	client telephony.Client
	events EventPublisher
	cfg    config.CommunicationConfig
	logger *logger.Logger
	tracer trace.Tracer

	sleep func(ctx context.Context, d time.Duration) error
}

// NewService builds the call orchestration service. cfg is copied and never
// modified afterwards.
func NewService(client telephony.Client, events EventPublisher, cfg config.CommunicationConfig, lg *logger.Logger) *Service {
	if events == nil {
		events = queue.NopPublisher{}
	}
	if lg == nil {
		lg = logger.Nop()
	}
	return &Service{
		client: client,
		events: events,
		cfg:    cfg,
		logger: lg,
		tracer: otel.Tracer("announce.callservice"),
		sleep:  sleepContext,
	}
}

// PlaceAnnouncementCall drives one call from creation to teardown.
//
// A call that does not connect within the poll budget is not an error: the
// outcome has Success=false and the call is left untouched. Playback failure
// hangs up before returning ErrPlayback; hangup failures are only logged.
func (s *Service) PlaceAnnouncementCall(ctx context.Context, req domain.CallRequest) (*domain.CallOutcome, error) {
	to := firstNonEmpty(req.DestinationNumber, s.cfg.DefaultToPhoneNumber)
	if to == "" {
		return nil, apperrors.Validation("toPhoneNumber is required")
	}
	audioURL := firstNonEmpty(req.AudioURL, s.cfg.DefaultAudioURL)
	from := s.cfg.FromPhoneNumber

	ctx, span := s.tracer.Start(ctx, "call.place_announcement", trace.WithAttributes(
		attribute.String("call.from", from),
		attribute.String("call.to", to),
		attribute.String("call.audio_url", audioURL),
	))
	defer span.End()

	lg := s.logger.WithContext(ctx)
	lg.Info("placing announcement call",
		zap.String("from", from), zap.String("to", to), zap.String("audio_url", audioURL))

	conn, err := s.client.CreateCall(ctx, telephony.CreateCallParams{
		From:        from,
		To:          to,
		CallbackURL: s.cfg.CallbackURL,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create call")
		lg.Error("create call failed", zap.String("to", to), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCallCreation, err)
	}

	session := domain.NewCallSession(conn.ID, from, to, audioURL)
	span.SetAttributes(attribute.String("call.connection_id", session.CallConnectionID))
	lg = lg.WithCall(session.CallConnectionID, from, to)
	lg.Info("call created")

	connected, err := s.waitForConnection(ctx, session, lg)
	if err != nil {
		return nil, s.fail(ctx, span, session, lg, fmt.Errorf("call service: wait for connection: %w", err))
	}
	if !connected {
		session.Transition(domain.CallStateConnectTimeout)
		lg.Warn("call did not connect in time", zap.Int("attempts", MaxPollAttempts))
		return s.finish(ctx, span, session, lg)
	}

	lg.Info("playing audio", zap.String("audio_url", audioURL))
	if err := s.client.PlayMedia(ctx, session.CallConnectionID, audioURL); err != nil {
		session.Transition(domain.CallStatePlaybackFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "play media")
		lg.Error("audio playback failed", zap.Error(err))
		s.hangUp(ctx, session, lg)
		playErr := fmt.Errorf("%w: %w", apperrors.ErrPlayback, err)
		s.publish(ctx, session, nil, playErr, lg)
		return nil, playErr
	}
	session.Transition(domain.CallStatePlaybackTriggered)

	waitErr := s.sleep(ctx, PlaybackWait)
	s.hangUp(ctx, session, lg)
	if waitErr != nil {
		return nil, s.fail(ctx, span, session, lg, fmt.Errorf("call service: wait for playback: %w", waitErr))
	}

	session.Transition(domain.CallStateCompleted)
	lg.Info("announcement call completed")
	return s.finish(ctx, span, session, lg)
}

// finish reports the outcome of a session that ended without an error.
func (s *Service) finish(ctx context.Context, span trace.Span, session *domain.CallSession, lg *logger.Logger) (*domain.CallOutcome, error) {
	outcome, err := domain.OutcomeFrom(session)
	if err != nil {
		return nil, s.fail(ctx, span, session, lg, fmt.Errorf("call service: %w", err))
	}
	s.publish(ctx, session, outcome, nil, lg)
	return outcome, nil
}

// waitForConnection polls until the platform reports the call connected or
// the attempt budget runs out. A failed query is logged and polling goes on.
// Only context cancellation is returned as an error.
func (s *Service) waitForConnection(ctx context.Context, session *domain.CallSession, lg *logger.Logger) (bool, error) {
	session.Transition(domain.CallStatePolling)

	for attempt := 1; attempt <= MaxPollAttempts; attempt++ {
		if err := s.sleep(ctx, PollInterval); err != nil {
			return false, err
		}

		props, err := s.client.GetCallConnectionProperties(ctx, session.CallConnectionID)
		if err != nil {
			lg.Warn("call state query failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		lg.Debug("call state", zap.Int("attempt", attempt), zap.String("state", props.State))

		if props.State == telephony.StateConnected {
			session.Transition(domain.CallStateConnected)
			lg.Info("call connected", zap.Int("attempt", attempt))
			return true, nil
		}
	}
	return false, nil
}

// hangUp disconnects the call once. It runs on a context detached from the
// request so a cancelled request still tears the call down.
func (s *Service) hangUp(ctx context.Context, session *domain.CallSession, lg *logger.Logger) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	if err := s.client.HangUp(hctx, session.CallConnectionID); err != nil {
		lg.Error("hang up failed", zap.Error(err))
		return
	}
	lg.Info("call disconnected")
}

func (s *Service) fail(ctx context.Context, span trace.Span, session *domain.CallSession, lg *logger.Logger, err error) error {
	session.Transition(domain.CallStateFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, "call failed")
	lg.Error("announcement call failed", zap.Error(err))
	s.publish(ctx, session, nil, err, lg)
	return err
}

func (s *Service) publish(ctx context.Context, session *domain.CallSession, outcome *domain.CallOutcome, callErr error, lg *logger.Logger) {
	event := queue.CallEvent{
		Type:             queue.EventTypeCallOutcome,
		CallConnectionID: session.CallConnectionID,
		State:            string(session.State),
		From:             session.OriginNumber,
		To:               session.DestinationNumber,
		AudioURL:         session.AudioURL,
		OccurredAt:       session.UpdatedAt,
	}
	if outcome != nil {
		event.Success = outcome.Success
		event.Message = outcome.Message
	}
	if callErr != nil {
		event.Error = callErr.Error()
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.PublishCallEvent(pctx, event); err != nil {
		lg.Warn("publish call event failed", zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
