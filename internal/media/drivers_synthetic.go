//go:build !devices

package media

import (
	"github.com/pion/mediadevices"

	// Synthetic sources so the call flow works without cgo or hardware.
	_ "github.com/pion/mediadevices/pkg/driver/audiotest"
	_ "github.com/pion/mediadevices/pkg/driver/videotest"
)

// HardwareCapture reports whether real devices are compiled in.
const HardwareCapture = false

// DefaultCodecSelector returns nil: encoders need cgo and are only built with -tags devices.
func DefaultCodecSelector(int) (*mediadevices.CodecSelector, error) {
	return nil, nil
}
