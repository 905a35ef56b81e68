//go:build darwin

package audio

/*
#cgo CFLAGS: -mmacosx-version-min=13.0 -fobjc-arc
#cgo LDFLAGS: -framework ScreenCaptureKit -framework CoreMedia -framework CoreAudio -framework Foundation

#include <stdint.h>

typedef struct {
	void *stream;
	void *delegate;
} sysaudio_handle;

int  sysaudio_check_permission(void);
int  sysaudio_request_permission(void);
int  sysaudio_start(sysaudio_handle *out, int sample_rate, int channels);
int  sysaudio_read(sysaudio_handle *h, float *left, float *right, int capacity, int *frames);
void sysaudio_stop(sysaudio_handle *h);
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/blackframe-audio/captureengine/pcm"
)

const (
	sysAudioSampleRate   = 48000
	sysAudioChannels     = 2
	sysAudioPollPeriod   = 10 * time.Millisecond
	sysAudioPollCapacity = 4800 // 100ms of headroom per poll at 48kHz
)

// darwinSysAudioBackend captures system output audio through a
// ScreenCaptureKit stream with audio capture enabled, filtered on the
// first display with the minimal 2x2 video surface; only the audio output
// is consumed. This is the supported way to tap rendered audio on macOS
// since there is no render-endpoint loopback concept as on Windows.
type darwinSysAudioBackend struct {
	handle C.sysaudio_handle
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newDarwinSysAudioBackend() *darwinSysAudioBackend {
	return &darwinSysAudioBackend{}
}

func (b *darwinSysAudioBackend) checkPermission() PermissionStatus {
	return permissionStatusOf(int(C.sysaudio_check_permission()))
}

func (b *darwinSysAudioBackend) requestPermission() PermissionStatus {
	return permissionStatusOf(int(C.sysaudio_request_permission()))
}

func (b *darwinSysAudioBackend) start(_ context.Context, deviceID string, data DataFunc, errFn ErrorFunc) error {
	if deviceID != SystemAudioDeviceID {
		return newDeviceError(ErrDeviceNotFound, deviceID, "no such system-audio device", nil)
	}
	if b.checkPermission() != PermissionGranted {
		return newCaptureError(ErrPermissionDenied, "screen recording permission required for system audio", nil)
	}

	if ret := C.sysaudio_start(&b.handle, C.int(sysAudioSampleRate), C.int(sysAudioChannels)); ret != 0 {
		return fmt.Errorf("start ScreenCaptureKit audio stream: native error %d", int(ret))
	}

	stopCh := make(chan struct{})
	b.stopCh = stopCh
	format := Format{SampleRate: sysAudioSampleRate, Channels: sysAudioChannels, BitDepth: 16, RawBitDepth: 32}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		left := make([]float32, sysAudioPollCapacity)
		right := make([]float32, sysAudioPollCapacity)
		ticker := time.NewTicker(sysAudioPollPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				C.sysaudio_stop(&b.handle)
				return
			case <-ticker.C:
				var frames C.int
				ret := C.sysaudio_read(
					&b.handle,
					(*C.float)(unsafe.Pointer(&left[0])),
					(*C.float)(unsafe.Pointer(&right[0])),
					C.int(sysAudioPollCapacity),
					&frames,
				)
				if ret < 0 {
					errFn(newCaptureError(ErrDeviceDisconnected, "system-audio stream failed", nil))
					C.sysaudio_stop(&b.handle)
					return
				}
				if frames == 0 {
					continue
				}
				out := pcm.InterleavePlanarFloat32ToInt16(
					[][]byte{
						pcm.Float32sToLEBytes(left[:frames]),
						pcm.Float32sToLEBytes(right[:frames]),
					},
					int(frames),
				)
				data(out, format)
			}
		}
	}()
	return nil
}

func (b *darwinSysAudioBackend) stop() error {
	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	b.wg.Wait()
	return nil
}

func permissionStatusOf(code int) PermissionStatus {
	switch code {
	case 1:
		return PermissionGranted
	case 0:
		return PermissionUndetermined
	default:
		return PermissionDenied
	}
}
