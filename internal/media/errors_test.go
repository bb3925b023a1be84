package media

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{fmt.Errorf("open: %w", os.ErrPermission), KindPermissionDenied},
		{syscall.EACCES, KindPermissionDenied},
		{errors.New("NotAllowedError: Permission denied"), KindPermissionDenied},
		{fmt.Errorf("ioctl: %w", syscall.EBUSY), KindDeviceBusy},
		{errors.New("Could not start video source"), KindDeviceBusy},
		{errors.New("failed to find the best driver that fits the constraints"), KindDeviceNotFound},
		{syscall.ENODEV, KindDeviceNotFound},
		{errors.New("something odd"), KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			got := Classify(tc.err)
			require.Equal(t, tc.kind, got.Kind)
			require.ErrorIs(t, got, tc.err)
		})
	}

	require.Nil(t, Classify(nil))

	existing := &Error{Kind: KindDeviceBusy, Message: "camera unavailable"}
	require.Same(t, existing, Classify(fmt.Errorf("wrapped: %w", existing)))
}

func TestError_Message(t *testing.T) {
	require.Equal(t, "media: device busy: camera unavailable",
		(&Error{Kind: KindDeviceBusy, Message: "camera unavailable"}).Error())
	require.Equal(t, "media: unknown", (&Error{}).Error())
}
