package media

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// TrackState mirrors a media track's readyState.
type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateEnded
)

func (s TrackState) String() string {
	if s == TrackStateEnded {
		return "ended"
	}
	return "live"
}

// Track is one captured audio or video source.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	// Local is what gets attached to a peer connection.
	Local() webrtc.TrackLocal
	ReadyState() TrackState
	Stop()
}

var (
	VideoCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	AudioCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
)

// LocalTrack is an RTP track fed by whoever owns it. Stopping it runs the owner's stop hook once.
type LocalTrack struct {
	local *webrtc.TrackLocalStaticRTP
	kind  webrtc.RTPCodecType
	state atomic.Int32

	stopOnce sync.Once
	onStop   func()
}

// NewLocalTrack creates a live track of the given kind inside streamID.
func NewLocalTrack(kind webrtc.RTPCodecType, streamID string) (*LocalTrack, error) {
	var codec webrtc.RTPCodecCapability
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		codec = VideoCodec
	case webrtc.RTPCodecTypeAudio:
		codec = AudioCodec
	default:
		return nil, fmt.Errorf("unsupported track kind %s", kind)
	}

	local, err := webrtc.NewTrackLocalStaticRTP(codec, kind.String()+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	return &LocalTrack{local: local, kind: kind}, nil
}

func (t *LocalTrack) ID() string { return t.local.ID() }
func (t *LocalTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *LocalTrack) Local() webrtc.TrackLocal { return t.local }
func (t *LocalTrack) RTP() *webrtc.TrackLocalStaticRTP { return t.local }

func (t *LocalTrack) ReadyState() TrackState {
	return TrackState(t.state.Load())
}

func (t *LocalTrack) Stop() {
	t.stopOnce.Do(func() {
		t.state.Store(int32(TrackStateEnded))
		if t.onStop != nil {
			t.onStop()
		}
	})
}

// Stream groups the tracks of one acquisition.
type Stream struct {
	id     string
	tracks []Track
}

func NewStream(id string, tracks []Track) *Stream {
	if id == "" {
		id = uuid.NewString()
	}
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// HasVideo reports whether the stream carries a video track.
func (s *Stream) HasVideo() bool {
	for _, t := range s.tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return true
		}
	}
	return false
}

// Stop ends every track in the stream.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
