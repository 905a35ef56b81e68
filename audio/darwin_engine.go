//go:build darwin

package audio

import "context"

// darwinEngine dispatches microphone sessions to AVFoundation
// (darwin_mic.go) and system-audio sessions to ScreenCaptureKit
// (darwin_sysaudio.go) under a single facade, enforcing the one
// active-session-per-engine invariant across both sub-backends — a mic
// session and a system-audio session never run concurrently through the
// same Engine, only back to back.
type darwinEngine struct {
	mic   *darwinMicBackend
	sys   *darwinSysAudioBackend
	guard sessionGuard

	activeStop func() error
}

func newDarwinEngine() *darwinEngine {
	return &darwinEngine{
		mic: newDarwinMicBackend(),
		sys: newDarwinSysAudioBackend(),
	}
}

func (e *darwinEngine) GetDevices(_ context.Context, deviceType DeviceType) ([]Device, error) {
	if deviceType == DeviceTypeSystemAudio {
		return []Device{{ID: SystemAudioDeviceID, Type: DeviceTypeSystemAudio, Name: "System Audio", IsDefault: true}}, nil
	}
	return e.mic.getDevices()
}

func (e *darwinEngine) GetDeviceFormat(_ context.Context, deviceID string) (Format, error) {
	if deviceID == SystemAudioDeviceID {
		return Format{SampleRate: sysAudioSampleRate, Channels: sysAudioChannels, BitDepth: 16, RawBitDepth: 32}, nil
	}
	return Format{SampleRate: micSampleRate, Channels: micChannels, BitDepth: 16, RawBitDepth: 16}, nil
}

func (e *darwinEngine) CheckPermission(_ context.Context, kind PermissionKind) (PermissionStatus, error) {
	if kind == PermissionScreenAudio {
		return e.sys.checkPermission(), nil
	}
	return e.mic.checkPermission(), nil
}

func (e *darwinEngine) RequestPermission(_ context.Context, kind PermissionKind) (PermissionStatus, error) {
	if kind == PermissionScreenAudio {
		return e.sys.requestPermission(), nil
	}
	return e.mic.requestPermission(), nil
}

func (e *darwinEngine) Start(ctx context.Context, deviceType DeviceType, deviceID string, data DataFunc, errFn ErrorFunc) error {
	if err := e.guard.begin(); err != nil {
		return err
	}

	if deviceID == SystemAudioDeviceID {
		if deviceType != DeviceTypeSystemAudio {
			e.guard.end(func() {})
			return newDeviceError(ErrDeviceTypeMismatch, deviceID, "the reserved system-audio id is not a microphone", nil)
		}
		if err := e.sys.start(ctx, deviceID, data, errFn); err != nil {
			e.guard.end(func() {})
			return err
		}
		e.activeStop = e.sys.stop
		return nil
	}

	if deviceType != DeviceTypeMicrophone {
		e.guard.end(func() {})
		return newDeviceError(ErrDeviceTypeMismatch, deviceID, "system-audio capture requires the reserved \"system\" id", nil)
	}

	if err := e.mic.start(ctx, deviceID, data, errFn); err != nil {
		e.guard.end(func() {})
		return err
	}
	e.activeStop = e.mic.stop
	return nil
}

func (e *darwinEngine) Stop() error {
	var stopErr error
	e.guard.end(func() {
		if e.activeStop != nil {
			stopErr = e.activeStop()
			e.activeStop = nil
		}
	})
	return stopErr
}

var _ Engine = (*darwinEngine)(nil)
