package media_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/mocks"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const backoff = 20 * time.Millisecond

var errBusy = fmt.Errorf("open /dev/video0: %w", syscall.EBUSY)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() media.Policy {
	p := media.DefaultPolicy()
	p.Backoff = backoff
	return p
}

func tracks(t *testing.T, video bool) []media.Track {
	t.Helper()
	var out []media.Track
	audio, err := media.NewLocalTrack(webrtc.RTPCodecTypeAudio, "stream-1")
	require.NoError(t, err)
	out = append(out, audio)
	if video {
		v, err := media.NewLocalTrack(webrtc.RTPCodecTypeVideo, "stream-1")
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func isVideo(c media.Constraints) bool { return c.Video }

func TestAcquire_FirstAttempt(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Cond(func(c media.Constraints) bool {
		return c.Video && c.Audio && c.Width == 1280 && c.Height == 720 && c.FrameRate == 30
	})).Return(tracks(t, true), nil).Times(1)

	a := media.NewAcquirer(capturer, testPolicy(), quietLogger())
	stream, err := a.Acquire(context.Background())
	req.NoError(err)
	req.True(stream.HasVideo())
	req.Len(stream.Tracks(), 2)
	req.Equal("stream-1", stream.ID())

	// A held stream is handed back without touching the devices again.
	again, err := a.Acquire(context.Background())
	req.NoError(err)
	req.Same(stream, again)
}

func TestAcquire_RetriesBusyDevice(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	gomock.InOrder(
		capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(nil, errBusy),
		capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(nil, errBusy),
		capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Cond(isVideo)).Return(tracks(t, true), nil),
	)

	a := media.NewAcquirer(capturer, testPolicy(), quietLogger())
	start := time.Now()
	stream, err := a.Acquire(context.Background())
	req.NoError(err)
	req.True(stream.HasVideo())
	req.GreaterOrEqual(time.Since(start), 2*backoff)
}

func TestAcquire_AudioOnlyFallback(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Cond(isVideo)).Return(nil, errBusy).Times(3)
	capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Cond(func(c media.Constraints) bool {
		return !c.Video && c.Audio
	})).Return(tracks(t, false), nil).Times(1)

	a := media.NewAcquirer(capturer, testPolicy(), quietLogger())
	stream, err := a.Acquire(context.Background())
	req.NoError(err)
	req.False(stream.HasVideo())
	req.Len(stream.Tracks(), 1)
	req.Nil(a.State().LastErr)
}

func TestAcquire_CameraUnavailable(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Cond(isVideo)).Return(nil, errBusy).Times(3)
	capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Not(gomock.Cond(isVideo))).Return(nil, errBusy).Times(1)

	a := media.NewAcquirer(capturer, testPolicy(), quietLogger())
	stream, err := a.Acquire(context.Background())
	req.Nil(stream)

	var merr *media.Error
	req.ErrorAs(err, &merr)
	req.Equal(media.KindDeviceBusy, merr.Kind)
	req.Equal("camera unavailable", merr.Message)
	req.True(merr.Retryable())
	req.Same(merr, a.State().LastErr)
}

func TestAcquire_TerminalErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind media.ErrorKind
	}{
		{"permission denied", fmt.Errorf("open /dev/video0: %w", os.ErrPermission), media.KindPermissionDenied},
		{"device not found", errors.New("failed to find the best driver that fits the constraints"), media.KindDeviceNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			capturer := mocks.NewMockCapturer(ctrl)
			capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(nil, tc.err).Times(1)

			a := media.NewAcquirer(capturer, testPolicy(), quietLogger())
			_, err := a.Acquire(context.Background())

			var merr *media.Error
			req.ErrorAs(err, &merr)
			req.Equal(tc.kind, merr.Kind)
			req.False(merr.Retryable())
			req.ErrorIs(err, tc.err)
		})
	}
}

func TestAcquire_UnknownErrorCarriesMessage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)
	capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(nil, errors.New("driver exploded")).Times(1)

	a := media.NewAcquirer(capturer, testPolicy(), quietLogger())
	_, err := a.Acquire(context.Background())

	var merr *media.Error
	req.ErrorAs(err, &merr)
	req.Equal(media.KindUnknown, merr.Kind)
	req.Equal("driver exploded", merr.Message)
	req.True(merr.Retryable())
}

func TestAcquire_ConcurrentCallIsRejected(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, c media.Constraints) ([]media.Track, error) {
			close(entered)
			<-unblock
			return tracks(t, true), nil
		}).Times(1)

	a := media.NewAcquirer(capturer, testPolicy(), quietLogger())

	done := make(chan error, 1)
	go func() {
		_, err := a.Acquire(context.Background())
		done <- err
	}()

	<-entered
	req.True(a.State().Acquiring)

	_, err := a.Acquire(context.Background())
	req.ErrorIs(err, media.ErrBusy)
	_, err = a.Retry(context.Background())
	req.ErrorIs(err, media.ErrBusy)

	close(unblock)
	req.NoError(<-done)
	req.NotNil(a.State().Stream)
}

func TestAcquire_CancelledDuringBackoff(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, media.Constraints) ([]media.Track, error) {
			cancel()
			return nil, errBusy
		}).Times(1)

	p := testPolicy()
	p.Backoff = time.Hour
	a := media.NewAcquirer(capturer, p, quietLogger())

	_, err := a.Acquire(ctx)
	req.ErrorIs(err, context.Canceled)
	req.False(a.State().Acquiring)
}

func TestRelease_StopsTracks(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	first := tracks(t, true)
	second := tracks(t, true)
	gomock.InOrder(
		capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(first, nil),
		capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(second, nil),
	)

	a := media.NewAcquirer(capturer, testPolicy(), quietLogger())
	stream, err := a.Acquire(context.Background())
	req.NoError(err)

	req.True(a.MarkAttached(stream))
	req.False(a.MarkAttached(stream), "tracks attach once per stream")

	fresh, err := a.Retry(context.Background())
	req.NoError(err)
	req.NotSame(stream, fresh)

	for _, tr := range first {
		req.Equal(media.TrackStateEnded, tr.ReadyState())
	}
	for _, tr := range second {
		req.Equal(media.TrackStateLive, tr.ReadyState())
	}

	state := a.State()
	req.False(state.Attached)
	req.False(a.MarkAttached(stream), "stale stream cannot be attached")
	req.True(a.MarkAttached(fresh))

	a.Detach()
	req.False(a.State().Attached)
	req.True(a.MarkAttached(fresh), "detached stream can be sent again")

	a.Release()
	req.Nil(a.State().Stream)
	for _, tr := range second {
		req.Equal(media.TrackStateEnded, tr.ReadyState())
	}
}

func TestRetry_ReleasesAndClaimsTogether(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	first := tracks(t, true)
	entered := make(chan struct{})
	unblock := make(chan struct{})
	gomock.InOrder(
		capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(first, nil),
		capturer.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, media.Constraints) ([]media.Track, error) {
				close(entered)
				<-unblock
				return tracks(t, true), nil
			}),
	)

	a := media.NewAcquirer(capturer, testPolicy(), quietLogger())
	old, err := a.Acquire(context.Background())
	req.NoError(err)
	req.True(a.MarkAttached(old))

	done := make(chan error, 1)
	go func() {
		_, err := a.Retry(context.Background())
		done <- err
	}()

	<-entered
	state := a.State()
	req.True(state.Acquiring)
	req.Nil(state.Stream)
	req.False(state.Attached)
	for _, tr := range first {
		req.Equal(media.TrackStateEnded, tr.ReadyState())
	}

	_, err = a.Acquire(context.Background())
	req.ErrorIs(err, media.ErrBusy, "no second capture while a retry runs")

	close(unblock)
	req.NoError(<-done)
	req.NotSame(old, a.State().Stream)
}
