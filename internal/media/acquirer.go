//go:generate go run go.uber.org/mock/mockgen -source=acquirer.go -destination=../mocks/mock_capturer.go -package=mocks

package media

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Constraints describe one device request. Width, Height and FrameRate are ideal values.
type Constraints struct {
	Video     bool
	Audio     bool
	Width     int
	Height    int
	FrameRate int
}

// AudioOnly returns a copy of c without the video request.
func (c Constraints) AudioOnly() Constraints {
	c.Video = false
	c.Audio = true
	return c
}

// Capturer opens capture devices.
type Capturer interface {
	GetUserMedia(ctx context.Context, c Constraints) ([]Track, error)
}

// Policy controls how an Acquirer requests devices.
type Policy struct {
	Constraints Constraints
	// Retries is the number of extra attempts after a busy device.
	Retries int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Constraints: Constraints{Video: true, Audio: true, Width: 1280, Height: 720, FrameRate: 30},
		Retries:     2,
		Backoff:     time.Second,
	}
}

// State is a snapshot of the local media.
type State struct {
	Stream    *Stream
	Attached  bool
	Acquiring bool
	LastErr   *Error
}

// Acquirer obtains the local camera and microphone, retrying busy devices.
type Acquirer struct {
	capturer Capturer
	policy   Policy
	log      *slog.Logger

	mu        sync.Mutex
	acquiring bool
	stream    *Stream
	attached  bool
	lastErr   *Error
}

func NewAcquirer(capturer Capturer, policy Policy, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		capturer: capturer,
		policy:   policy,
		log:      logger.With("component", "media"),
	}
}

// Acquire returns the current stream, requesting devices if none is held.
// A call made while another acquisition is running fails with ErrBusy.
func (a *Acquirer) Acquire(ctx context.Context) (*Stream, error) {
	a.mu.Lock()
	if a.acquiring {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	if a.stream != nil {
		stream := a.stream
		a.mu.Unlock()
		return stream, nil
	}
	a.acquiring = true
	a.mu.Unlock()

	return a.run(ctx)
}

// run performs a claimed acquisition and records its outcome.
func (a *Acquirer) run(ctx context.Context) (*Stream, error) {
	stream, err := a.acquire(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.acquiring = false
	if err != nil {
		a.lastErr = err
		return nil, err
	}
	a.stream = stream
	a.lastErr = nil
	return stream, nil
}

func (a *Acquirer) acquire(ctx context.Context) (*Stream, *Error) {
	want := a.policy.Constraints

	for attempt := 0; ; attempt++ {
		tracks, err := a.capturer.GetUserMedia(ctx, want)
		if err == nil {
			a.log.Info("media acquired", "attempt", attempt+1, "tracks", len(tracks), "video", want.Video)
			return NewStream(streamIDOf(tracks), tracks), nil
		}

		merr := Classify(err)
		a.log.Warn("media request failed", "attempt", attempt+1, "kind", merr.Kind.String(), "error", err)

		if merr.Kind != KindDeviceBusy {
			return nil, merr
		}

		if attempt < a.policy.Retries {
			if err := wait(ctx, a.policy.Backoff); err != nil {
				return nil, &Error{Kind: KindUnknown, Message: "acquisition cancelled", Err: err}
			}
			continue
		}

		if want.Video {
			tracks, ferr := a.capturer.GetUserMedia(ctx, want.AudioOnly())
			if ferr == nil {
				a.log.Info("camera busy, continuing with audio only")
				return NewStream(streamIDOf(tracks), tracks), nil
			}
			a.log.Warn("audio-only fallback failed", "error", ferr)
			return nil, &Error{Kind: KindDeviceBusy, Message: "camera unavailable", Err: err}
		}
		return nil, &Error{Kind: KindDeviceBusy, Message: "microphone unavailable", Err: err}
	}
}

// Release stops every track and forgets the stream.
func (a *Acquirer) Release() {
	a.mu.Lock()
	stream := a.stream
	a.stream = nil
	a.attached = false
	a.mu.Unlock()

	if stream != nil {
		stream.Stop()
		a.log.Debug("media released", "stream", stream.ID())
	}
}

// Retry releases the current stream and acquires a fresh one.
func (a *Acquirer) Retry(ctx context.Context) (*Stream, error) {
	a.mu.Lock()
	if a.acquiring {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	old := a.stream
	a.stream = nil
	a.attached = false
	a.acquiring = true
	a.mu.Unlock()

	if old != nil {
		old.Stop()
		a.log.Debug("media released for retry", "stream", old.ID())
	}
	return a.run(ctx)
}

// MarkAttached records that stream's tracks were handed to the peer connection.
// It reports false if they already were, or if stream is no longer current.
func (a *Acquirer) MarkAttached(stream *Stream) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if stream == nil || stream != a.stream || a.attached {
		return false
	}
	a.attached = true
	return true
}

// Detach clears the attached flag so the current stream can be sent on a new peer connection.
func (a *Acquirer) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attached = false
}

func (a *Acquirer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{
		Stream:    a.stream,
		Attached:  a.attached,
		Acquiring: a.acquiring,
		LastErr:   a.lastErr,
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func streamIDOf(tracks []Track) string {
	for _, t := range tracks {
		if local := t.Local(); local != nil && local.StreamID() != "" {
			return local.StreamID()
		}
	}
	return ""
}
