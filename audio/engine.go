// Package audio implements the platform-abstract capture engine: device
// enumeration, format negotiation, permission gating, and the cross-thread
// delivery contract described for the Windows WASAPI backend and the
// macOS microphone/system-audio backends. Platform selection happens in
// New via build-tagged factory files; callers only ever see the Engine
// interface below.
package audio

import "context"

// DataFunc receives one buffer of interleaved signed 16-bit little-endian
// PCM per invocation. The slice is only valid for the duration of the
// call — implementations must copy it before returning if they need to
// retain it, since the producer thread reuses or discards the backing
// buffer immediately after the call returns. DataFunc is always invoked
// from the same producer context for a given session (never concurrently
// with itself), and never after Stop has returned.
type DataFunc func(data []byte, format Format)

// ErrorFunc receives fatal session errors — a device disconnecting mid
// capture, or a platform API failing inside the producer loop. After
// ErrorFunc is invoked the session is no longer capturing; the caller
// must call Stop before starting a new session.
type ErrorFunc func(err error)

// PermissionKind distinguishes the OS permission gates a backend may need
// to check before capture can start. Windows backends report Granted
// unconditionally for both kinds (no OS-level consent gate exists for
// either loopback or microphone capture there).
type PermissionKind string

const (
	PermissionMicrophone  PermissionKind = "microphone"
	PermissionScreenAudio PermissionKind = "screen-audio"
)

// PermissionStatus mirrors the tri-state consent model macOS exposes for
// both microphone access and screen/system-audio recording.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Engine is the platform-abstract capture contract. Exactly one backend
// implementation is active per process (see Non-goals: no simultaneous
// capture from multiple engines in one process); New returns the backend
// appropriate for the running OS.
type Engine interface {
	// GetDevices enumerates capturable endpoints for the given type. For
	// DeviceTypeSystemAudio on macOS this returns a single synthetic
	// device with ID SystemAudioDeviceID; on Windows it returns the
	// render endpoints eligible for loopback capture.
	GetDevices(ctx context.Context, deviceType DeviceType) ([]Device, error)

	// GetDeviceFormat reports the format a session against deviceID would
	// negotiate, without starting capture.
	GetDeviceFormat(ctx context.Context, deviceID string) (Format, error)

	// CheckPermission reports the current consent state for kind without
	// prompting the user.
	CheckPermission(ctx context.Context, kind PermissionKind) (PermissionStatus, error)

	// RequestPermission prompts the user for consent if undetermined,
	// blocking until the user responds. The macOS backends stop waiting
	// after 30 seconds; backends with no consent gate return at once. ctx
	// does not interrupt the wait.
	RequestPermission(ctx context.Context, kind PermissionKind) (PermissionStatus, error)

	// Start begins capturing from (deviceType, deviceID), invoking data for
	// every PCM buffer and errFn on fatal failure. The pair is the sole
	// authoritative device selector (§3): deviceID must resolve to a
	// device of deviceType, or Start returns a CaptureError with code
	// ErrDeviceTypeMismatch. Start returns once capture has actually begun
	// (the platform client is initialized and running), not merely once
	// the goroutine/thread has been spawned. Calling Start while a session
	// is already active returns a CaptureError with code
	// ErrAlreadyRecording.
	Start(ctx context.Context, deviceType DeviceType, deviceID string, data DataFunc, errFn ErrorFunc) error

	// Stop tears down the active session, releasing all platform
	// resources, and blocks until the producer thread has fully exited —
	// no further data/error callback will fire after Stop returns. Stop
	// on an engine with no active session is a no-op.
	Stop() error
}
