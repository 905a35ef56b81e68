package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeEngine is a build-tag-free Engine implementation used to exercise
// the facade-level invariants (single active session, ordered delivery,
// clean shutdown, permission gating) without a real platform backend.
// It models one microphone and one system-audio device, generating
// synthetic silence frames on a timer goroutine the same way a real
// producer thread would deliver buffers, so tests can run on any GOOS.
type fakeEngine struct {
	guard   sessionGuard
	micPerm PermissionStatus
	sysPerm PermissionStatus

	stopCh chan struct{}
	wg     sync.WaitGroup
	frames atomic.Int64
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		micPerm: PermissionGranted,
		sysPerm: PermissionGranted,
	}
}

func (f *fakeEngine) GetDevices(_ context.Context, deviceType DeviceType) ([]Device, error) {
	switch deviceType {
	case DeviceTypeMicrophone:
		return []Device{{ID: "fake-mic-1", Type: DeviceTypeMicrophone, Name: "Fake Microphone", IsDefault: true}}, nil
	case DeviceTypeSystemAudio:
		return []Device{{ID: SystemAudioDeviceID, Type: DeviceTypeSystemAudio, Name: "System Audio", IsDefault: true}}, nil
	default:
		return nil, newCaptureError(ErrUnsupportedOperation, "unknown device type", nil)
	}
}

func (f *fakeEngine) GetDeviceFormat(_ context.Context, deviceID string) (Format, error) {
	if deviceID != "fake-mic-1" && deviceID != SystemAudioDeviceID {
		return Format{}, newDeviceError(ErrDeviceNotFound, deviceID, "no such device", nil)
	}
	return Format{SampleRate: 48000, Channels: 2, BitDepth: 16, RawBitDepth: 16}, nil
}

func (f *fakeEngine) CheckPermission(_ context.Context, kind PermissionKind) (PermissionStatus, error) {
	if kind == PermissionMicrophone {
		return f.micPerm, nil
	}
	return f.sysPerm, nil
}

func (f *fakeEngine) RequestPermission(ctx context.Context, kind PermissionKind) (PermissionStatus, error) {
	return f.CheckPermission(ctx, kind)
}

func (f *fakeEngine) Start(_ context.Context, deviceType DeviceType, deviceID string, data DataFunc, errFn ErrorFunc) error {
	if err := f.guard.begin(); err != nil {
		return err
	}
	if deviceID != "fake-mic-1" && deviceID != SystemAudioDeviceID {
		f.guard.end(func() {})
		return newDeviceError(ErrDeviceNotFound, deviceID, "no such device", nil)
	}
	wantType := DeviceTypeMicrophone
	if deviceID == SystemAudioDeviceID {
		wantType = DeviceTypeSystemAudio
	}
	if deviceType != wantType {
		f.guard.end(func() {})
		return newDeviceError(ErrDeviceTypeMismatch, deviceID, "device resolves to the opposite type requested", nil)
	}

	format := Format{SampleRate: 48000, Channels: 2, BitDepth: 16, RawBitDepth: 16}
	f.stopCh = make(chan struct{})
	f.frames.Store(0)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-f.stopCh:
				return
			case <-ticker.C:
				frame := make([]byte, 480*2*2)
				data(frame, format)
				f.frames.Add(1)
			}
		}
	}()
	return nil
}

func (f *fakeEngine) Stop() error {
	f.guard.end(func() {
		if f.stopCh != nil {
			close(f.stopCh)
		}
	})
	f.wg.Wait()
	return nil
}

var _ Engine = (*fakeEngine)(nil)
