package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Default configuration values (production)
const (
	DefaultServerURL = "wss://warpcall.qzz.io/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultRelayAddr = ":8080"

	DefaultVideoWidth  = 1280
	DefaultVideoHeight = 720
	DefaultVideoFPS    = 30

	DefaultMediaRetries = 2
	DefaultMediaBackoff = time.Second

	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

var (
	ErrMissingRoom        = errors.New("room id is required")
	ErrRelayWithoutTURN   = errors.New("cannot force relay mode without TURN server configured")
	ErrUnsupportedCodec   = errors.New("unsupported signaling codec")
	ErrInvalidMediaPolicy = errors.New("invalid media retry policy")
)

// Config holds application configuration
type Config struct {
	// ServerURL is the websocket endpoint of the signaling relay
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	RoomID string
	UserID string

	// Codec selects the signaling wire format (json or msgpack)
	Codec string

	VideoWidth  int
	VideoHeight int
	VideoFPS    int
	AudioOnly   bool

	MediaRetries int
	MediaBackoff time.Duration

	// AutoSendStreams attaches local media right after answering the first offer
	AutoSendStreams bool

	// RelayAddr is the listen address of the relay server
	RelayAddr string
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	RoomID     string
	UserID     string
	Codec      string
	AudioOnly  bool
	RelayAddr  string
}

// environment mirrors the variables read from the process environment (and .env).
type environment struct {
	ServerURL       string        `env:"SIGNALING_URL,default=wss://warpcall.qzz.io/ws"`
	STUNServer      string        `env:"STUN_SERVER,default=stun:stun.l.google.com:19302"`
	TURNServer      string        `env:"TURN_SERVER"`
	TURNUser        string        `env:"TURN_USERNAME"`
	TURNPass        string        `env:"TURN_PASSWORD"`
	ForceRelay      bool          `env:"FORCE_RELAY,default=false"`
	Codec           string        `env:"SIGNALING_CODEC,default=json"`
	UserID          string        `env:"USER_ID"`
	VideoWidth      int           `env:"VIDEO_WIDTH,default=1280"`
	VideoHeight     int           `env:"VIDEO_HEIGHT,default=720"`
	VideoFPS        int           `env:"VIDEO_FPS,default=30"`
	MediaRetries    int           `env:"MEDIA_RETRIES,default=2"`
	MediaBackoff    time.Duration `env:"MEDIA_BACKOFF,default=1s"`
	AutoSendStreams bool          `env:"AUTO_SEND_STREAMS,default=true"`
	RelayAddr       string        `env:"RELAY_ADDR,default=:8080"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables, after loading an optional .env file
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := &Config{
		ServerURL:       firstNonEmpty(opts.ServerURL, e.ServerURL, DefaultServerURL),
		STUNServer:      firstNonEmpty(opts.STUNServer, e.STUNServer, DefaultSTUN),
		TURNServer:      firstNonEmpty(opts.TURNServer, e.TURNServer),
		TURNUser:        firstNonEmpty(opts.TURNUser, e.TURNUser),
		TURNPass:        firstNonEmpty(opts.TURNPass, e.TURNPass),
		ForceRelay:      opts.ForceRelay || e.ForceRelay,
		RoomID:          opts.RoomID,
		UserID:          firstNonEmpty(opts.UserID, e.UserID),
		Codec:           strings.ToLower(firstNonEmpty(opts.Codec, e.Codec, CodecJSON)),
		VideoWidth:      positiveOr(e.VideoWidth, DefaultVideoWidth),
		VideoHeight:     positiveOr(e.VideoHeight, DefaultVideoHeight),
		VideoFPS:        positiveOr(e.VideoFPS, DefaultVideoFPS),
		AudioOnly:       opts.AudioOnly,
		MediaRetries:    e.MediaRetries,
		MediaBackoff:    e.MediaBackoff,
		AutoSendStreams: e.AutoSendStreams,
		RelayAddr:       firstNonEmpty(opts.RelayAddr, e.RelayAddr, DefaultRelayAddr),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Codec {
	case CodecJSON, CodecMsgpack:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedCodec, c.Codec)
	}

	if c.ForceRelay && c.TURNServer == "" {
		return ErrRelayWithoutTURN
	}

	if c.MediaRetries < 0 || c.MediaBackoff < 0 {
		return ErrInvalidMediaPolicy
	}
	return nil
}

// RequireRoom checks that a room to join was provided.
func (c *Config) RequireRoom() error {
	if strings.TrimSpace(c.RoomID) == "" {
		return ErrMissingRoom
	}
	return nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", strings.TrimPrefix(c.TURNServer, "turn:")),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
