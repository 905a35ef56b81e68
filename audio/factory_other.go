//go:build !windows && !darwin

package audio

import "fmt"

// New reports an unsupported-platform error; the capture engine's two
// backends are Windows (WASAPI) and macOS (AVFoundation/ScreenCaptureKit)
// per §4, with no third backend in scope.
func New() (Engine, error) {
	return nil, fmt.Errorf("audio: unsupported platform")
}
