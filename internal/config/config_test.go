package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load(Options{RoomID: "1234"})
	req.NoError(err)

	req.Equal(DefaultServerURL, cfg.ServerURL)
	req.Equal([]string{DefaultSTUN}, cfg.GetSTUNServers())
	req.Nil(cfg.GetTURNServers())
	req.Equal(CodecJSON, cfg.Codec)
	req.Equal(1280, cfg.VideoWidth)
	req.Equal(720, cfg.VideoHeight)
	req.Equal(30, cfg.VideoFPS)
	req.Equal(2, cfg.MediaRetries)
	req.Equal(time.Second, cfg.MediaBackoff)
	req.True(cfg.AutoSendStreams)
	req.NoError(cfg.RequireRoom())
}

func TestLoad_Priority(t *testing.T) {
	t.Run("env overrides default", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("SIGNALING_URL", "ws://env.example/ws")
		t.Setenv("MEDIA_BACKOFF", "250ms")
		t.Setenv("SIGNALING_CODEC", "MSGPACK")

		cfg, err := Load(Options{})
		req.NoError(err)
		req.Equal("ws://env.example/ws", cfg.ServerURL)
		req.Equal(250*time.Millisecond, cfg.MediaBackoff)
		req.Equal(CodecMsgpack, cfg.Codec)
	})

	t.Run("flag overrides env", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("SIGNALING_URL", "ws://env.example/ws")

		cfg, err := Load(Options{ServerURL: "ws://flag.example/ws"})
		req.NoError(err)
		req.Equal("ws://flag.example/ws", cfg.ServerURL)
	})
}

func TestLoad_Validation(t *testing.T) {
	t.Run("relay without turn", func(t *testing.T) {
		_, err := Load(Options{ForceRelay: true})
		require.ErrorIs(t, err, ErrRelayWithoutTURN)
	})

	t.Run("unknown codec", func(t *testing.T) {
		_, err := Load(Options{Codec: "xml"})
		require.ErrorIs(t, err, ErrUnsupportedCodec)
	})

	t.Run("missing room", func(t *testing.T) {
		cfg, err := Load(Options{RoomID: "  "})
		require.NoError(t, err)
		require.ErrorIs(t, cfg.RequireRoom(), ErrMissingRoom)
	})
}

func TestGetTURNServers(t *testing.T) {
	req := require.New(t)

	cfg, err := Load(Options{TURNServer: "turn:turn.example", TURNUser: "u", TURNPass: "p", ForceRelay: true})
	req.NoError(err)

	req.Equal([]string{
		"turn:turn.example:3478?transport=udp",
		"turn:turn.example:3478?transport=tcp",
		"turns:turn.example:5349?transport=tcp",
	}, cfg.GetTURNServers())

	user, pass := cfg.GetTURNCredentials()
	req.Equal("u", user)
	req.Equal("p", pass)
}
