package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/acme/announcement-call/internal/config"
	"github.com/acme/announcement-call/internal/queue"
	audiosvc "github.com/acme/announcement-call/internal/service/audio"
	callsvc "github.com/acme/announcement-call/internal/service/call"
	"github.com/acme/announcement-call/internal/telephony"
	"github.com/acme/announcement-call/internal/telephony/acs"
	telephonyMock "github.com/acme/announcement-call/internal/telephony/mock"
	"github.com/acme/announcement-call/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	// Kafka is nil when no brokers are configured.
	Kafka *queue.Kafka

	publisher *queue.CallEventPublisher
	services  *services
	providers *providers
}

type services struct {
	Call  *callsvc.Service
	Audio *audiosvc.Provider
}

type providers struct {
	Telephony telephony.Client
}

// Build constructs a container for the given configuration path. Invalid
// configuration fails here, before any request is served.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New constructs a container from an already loaded configuration.
func New(_ context.Context, cfg *config.Config) (*Container, error) {
	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	client, err := newTelephonyClient(cfg.Communication)
	if err != nil {
		return nil, fmt.Errorf("bootstrap telephony: %w", err)
	}

	container := &Container{
		Config:    cfg,
		Logger:    lg,
		providers: &providers{Telephony: client},
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := queue.NewKafka(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("bootstrap kafka: %w", err)
		}
		container.Kafka = kafka
		container.publisher = queue.NewCallEventPublisher(kafka, cfg.Kafka.EventsTopic)
	} else {
		lg.Info("kafka brokers not configured, call events are not published")
	}

	container.services = &services{
		Call:  callsvc.NewService(client, container.Events(), cfg.Communication, lg),
		Audio: audiosvc.NewProvider(cfg.Audio),
	}

	return container, nil
}

func newTelephonyClient(cfg config.CommunicationConfig) (telephony.Client, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return telephonyMock.NewProvider(cfg), nil
	case config.ProviderACS:
		return acs.New(acs.Config{
			ConnectionString: cfg.ConnectionString,
			Timeout:          cfg.RequestTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported telephony provider %q", cfg.Provider)
	}
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	return c.services
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	return c.providers
}

// Events returns the call event sink; a no-op when Kafka is disabled.
func (c *Container) Events() callsvc.EventPublisher {
	if c.publisher == nil {
		return queue.NopPublisher{}
	}
	return c.publisher
}

// EnsureTopics ensures the call event topic exists.
func (c *Container) EnsureTopics(ctx context.Context) error {
	if c.Kafka == nil {
		return nil
	}
	return c.Kafka.EnsureTopic(ctx, c.Config.Kafka.EventsTopic, 6)
}

// CheckAudioAsset inspects the served asset once at startup. Problems are
// logged, not fatal: GetAudio reports them per request.
func (c *Container) CheckAudioAsset(ctx context.Context) {
	provider := c.services.Audio
	info, err := provider.Inspect(ctx)
	if err != nil {
		c.Logger.Warn("audio asset unavailable", zap.String("path", provider.Path()), zap.Error(err))
		return
	}

	c.Logger.Info("audio asset ready",
		zap.String("path", provider.Path()),
		zap.Int64("bytes", info.Size),
		zap.Int("sample_rate", info.SampleRate),
		zap.Duration("duration", info.Duration))

	if info.Duration > callsvc.PlaybackWait {
		c.Logger.Warn("audio asset is longer than the playback wait, calls will be cut off",
			zap.Duration("duration", info.Duration),
			zap.Duration("playback_wait", callsvc.PlaybackWait))
	}
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
