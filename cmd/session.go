package cmd

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/dns"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/session"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// ConnectionContext holds everything one room visit needs.
type ConnectionContext struct {
	Client     *signaling.Client
	Config     *config.Config
	Acquirer   *media.Acquirer
	Controller *session.Controller
	log        *slog.Logger
}

func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	logger := slog.Default()

	codec, err := signaling.CodecByName(cfg.Codec)
	if err != nil {
		return nil, session.NewError("select codec", err)
	}

	client := signaling.NewClient(cfg.ServerURL, signaling.ClientOptions{
		Codec:    codec,
		Resolver: dns.NewResolver(),
		Logger:   logger,
	})
	if err := client.Connect(ctx); err != nil {
		return nil, session.NewError("connect to server", err)
	}

	acquirer, err := newAcquirer(cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	engineCfg := negotiation.ConfigFromSettings(cfg, logger)
	controller, err := session.New(session.Options{
		RoomID:          cfg.RoomID,
		UserID:          cfg.UserID,
		AutoSendStreams: cfg.AutoSendStreams,
		Logger:          logger,
	}, client, acquirer, negotiation.NewFactory(engineCfg))
	if err != nil {
		client.Close()
		return nil, err
	}

	return &ConnectionContext{
		Client:     client,
		Config:     cfg,
		Acquirer:   acquirer,
		Controller: controller,
		log:        logging.Component("cli"),
	}, nil
}

func newAcquirer(cfg *config.Config, logger *slog.Logger) (*media.Acquirer, error) {
	selector, err := media.DefaultCodecSelector(1_000_000)
	if err != nil {
		return nil, session.NewError("configure encoders", err)
	}

	policy := media.Policy{
		Constraints: media.Constraints{
			Video:     !cfg.AudioOnly,
			Audio:     true,
			Width:     cfg.VideoWidth,
			Height:    cfg.VideoHeight,
			FrameRate: cfg.VideoFPS,
		},
		Retries: cfg.MediaRetries,
		Backoff: cfg.MediaBackoff,
	}
	return media.NewAcquirer(media.NewDeviceCapturer(selector, logger), policy, logger), nil
}

func (c *ConnectionContext) Close() {
	if c.Controller != nil {
		if err := c.Controller.Leave(); err != nil {
			c.log.Warn("leave failed", "error", err)
		}
	}
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, session.NewError("load config", err)
	}
	return cfg, nil
}
