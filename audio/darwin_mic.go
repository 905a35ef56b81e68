//go:build darwin

package audio

/*
#cgo CFLAGS: -mmacosx-version-min=13.0 -fobjc-arc
#cgo LDFLAGS: -framework AVFoundation -framework CoreMedia -framework Foundation

#include <stdint.h>
#include <stdlib.h>

#define MIC_MAX_DEVICES 32

typedef struct {
	char id[256];
	char name[256];
	int  is_default;
} mic_device_info;

typedef struct {
	void *session;
	void *output;
	void *delegate;
} mic_handle;

int  mic_check_permission(void);
int  mic_request_permission(void);
int  mic_list_devices(mic_device_info *out, int capacity);
int  mic_start(mic_handle *out, const char *device_id, int sample_rate, int channels);
int  mic_read(mic_handle *h, int16_t *dst, int capacity_frames, int *frames);
void mic_stop(mic_handle *h);
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

// 48kHz forced stereo matches §6's macOS-wide invariant ("Sample rate:
// 48000 Hz on macOS (forced)... Channels: 2 on macOS (forced)"), the
// same negotiation AVFoundation performs comfortably across built-in and
// USB microphones.
const (
	micSampleRate = 48000
	micChannels   = 2
	micPollPeriod = 10 * time.Millisecond
	micPollFrames = 4800
)

type darwinMicBackend struct {
	handle C.mic_handle
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newDarwinMicBackend() *darwinMicBackend {
	return &darwinMicBackend{}
}

func (b *darwinMicBackend) checkPermission() PermissionStatus {
	return permissionStatusOf(int(C.mic_check_permission()))
}

func (b *darwinMicBackend) requestPermission() PermissionStatus {
	return permissionStatusOf(int(C.mic_request_permission()))
}

func (b *darwinMicBackend) getDevices() ([]Device, error) {
	var raw [C.MIC_MAX_DEVICES]C.mic_device_info
	n := C.mic_list_devices(&raw[0], C.int(len(raw)))
	if n < 0 {
		return nil, fmt.Errorf("enumerate microphones: native error %d", int(n))
	}

	devices := make([]Device, 0, int(n))
	for i := 0; i < int(n); i++ {
		d := raw[i]
		devices = append(devices, Device{
			ID:        C.GoString(&d.id[0]),
			Type:      DeviceTypeMicrophone,
			Name:      C.GoString(&d.name[0]),
			IsDefault: d.is_default != 0,
		})
	}
	return devices, nil
}

func (b *darwinMicBackend) start(_ context.Context, deviceID string, data DataFunc, errFn ErrorFunc) error {
	if b.checkPermission() != PermissionGranted {
		return newCaptureError(ErrPermissionDenied, "microphone permission not granted", nil)
	}

	cDeviceID := C.CString(deviceID)
	defer C.free(unsafe.Pointer(cDeviceID))

	if ret := C.mic_start(&b.handle, cDeviceID, C.int(micSampleRate), C.int(micChannels)); ret != 0 {
		if ret == -2 {
			return newDeviceError(ErrDeviceNotFound, deviceID, "no such microphone", nil)
		}
		return fmt.Errorf("start AVCaptureSession: native error %d", int(ret))
	}

	stopCh := make(chan struct{})
	b.stopCh = stopCh
	format := Format{SampleRate: micSampleRate, Channels: micChannels, BitDepth: 16, RawBitDepth: 16}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		buf := make([]int16, micPollFrames*micChannels)
		ticker := time.NewTicker(micPollPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				C.mic_stop(&b.handle)
				return
			case <-ticker.C:
				var frames C.int
				ret := C.mic_read(&b.handle, (*C.int16_t)(unsafe.Pointer(&buf[0])), C.int(micPollFrames), &frames)
				if ret < 0 {
					errFn(newDeviceError(ErrDeviceDisconnected, deviceID, "microphone stream failed", nil))
					C.mic_stop(&b.handle)
					return
				}
				if frames == 0 {
					continue
				}
				samples := int(frames) * micChannels
				data(pcm.Int16sToLEBytes(buf[:samples]), format)
			}
		}
	}()
	return nil
}

func (b *darwinMicBackend) stop() error {
	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	b.wg.Wait()
	return nil
}
