//go:build windows

package audio

// New returns the Windows WASAPI-backed Engine.
func New() (Engine, error) {
	return newWASAPIEngine()
}
