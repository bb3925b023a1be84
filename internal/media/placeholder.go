package media

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Payloads sent when no encoder is available, so the far end still sees the track.
var (
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	vp8Filler   = []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a}
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 100 * time.Millisecond
)

// Placeholder writes filler RTP into t until ctx ends or the track stops.
func Placeholder(ctx context.Context, t *LocalTrack) {
	payload, interval, clock := opusSilence, audioFrame, AudioCodec.ClockRate
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		payload, interval, clock = vp8Filler, videoFrame, VideoCodec.ClockRate
	}
	step := uint32(interval.Seconds() * float64(clock))

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
		Payload: payload,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if t.ReadyState() == TrackStateEnded {
			return
		}
		if err := t.RTP().WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return
		}
		pkt.SequenceNumber++
		pkt.Timestamp += step
	}
}
