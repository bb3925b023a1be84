package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

const rtpMTU = 1200

// DeviceCapturer opens local devices through pion/mediadevices and pumps encoded
// RTP into tracks a peer connection can send.
type DeviceCapturer struct {
	selector *mediadevices.CodecSelector
	log      *slog.Logger
}

// NewDeviceCapturer uses selector to encode captured frames. With a nil selector the
// tracks carry placeholder packets instead of encoded media.
func NewDeviceCapturer(selector *mediadevices.CodecSelector, logger *slog.Logger) *DeviceCapturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceCapturer{selector: selector, log: logger.With("component", "capture")}
}

func (d *DeviceCapturer) GetUserMedia(ctx context.Context, c Constraints) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if c.Video {
		req.Video = func(tc *mediadevices.MediaTrackConstraints) {
			tc.Width = prop.Int(c.Width)
			tc.Height = prop.Int(c.Height)
			tc.FrameRate = prop.Float(float32(c.FrameRate))
		}
	}
	if c.Audio {
		req.Audio = func(tc *mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(req)
	if err != nil {
		return nil, err
	}

	streamID := uuid.NewString()
	var tracks []Track
	for _, src := range ms.GetTracks() {
		t, err := d.wrap(src, streamID)
		if err != nil {
			for _, done := range tracks {
				done.Stop()
			}
			_ = src.Close()
			return nil, err
		}
		tracks = append(tracks, t)
	}

	if len(tracks) == 0 {
		return nil, errors.New("failed to find any capture device")
	}
	return tracks, nil
}

func (d *DeviceCapturer) wrap(src mediadevices.Track, streamID string) (Track, error) {
	t, err := NewLocalTrack(src.Kind(), streamID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.onStop = func() {
		cancel()
		_ = src.Close()
	}

	if d.selector != nil {
		go d.pump(ctx, src, t.RTP())
	} else {
		d.log.Debug("no encoder configured, sending placeholder frames", "kind", src.Kind().String())
		go Placeholder(ctx, t)
	}
	return t, nil
}

// pump forwards encoded packets from src into dst until ctx ends or src closes.
func (d *DeviceCapturer) pump(ctx context.Context, src mediadevices.Track, dst *webrtc.TrackLocalStaticRTP) {
	mime := dst.Codec().MimeType
	codec := mime[strings.Index(mime, "/")+1:]

	reader, err := src.NewRTPReader(codec, rand.Uint32(), rtpMTU)
	if err != nil {
		d.log.Error("failed to create RTP reader", "codec", codec, "error", err)
		return
	}
	defer reader.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		pkts, release, err := reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.log.Warn("RTP read error", "track", src.ID(), "error", err)
			}
			return
		}

		for _, pkt := range pkts {
			if err := dst.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				d.log.Warn("WriteRTP error", "track", src.ID(), "error", err)
			}
		}
		if release != nil {
			release()
		}
	}
}
