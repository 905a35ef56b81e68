//go:build windows

package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/go-ole/go-ole"
	wca "github.com/moutend/go-wca/pkg/wca"
	"golang.org/x/sys/windows"

	"github.com/blackframe-audio/captureengine/pcm"
)

// sampleFormat classifies the wire width and representation a WASAPI mix
// format reports, so the capture loop knows which pcm conversion to apply
// per §4.2's numeric rules.
type sampleFormat int

const (
	formatInt16 sampleFormat = iota
	formatInt24
	formatInt32
	formatFloat32
)

const (
	waveFormatPCM           = 1
	waveFormatIEEEFloat     = 3
	waveFormatExtensibleTag = 0xFFFE
	bufferDuration100ns     = 10000000 // 1 second, per §4.2's requested shared-mode buffer period
)

// subtypeIEEEFloat is KSDATAFORMAT_SUBTYPE_IEEE_FLOAT, the well-known
// WAVEFORMATEXTENSIBLE subformat GUID for floating point PCM.
var subtypeIEEEFloat = ole.NewGUID("{00000003-0000-0010-8000-00AA00389B71}")

// waveFormatExtensible mirrors the WAVEFORMATEXTENSIBLE layout so a
// WAVEFORMATEX* returned by GetMixFormat can be reinterpreted to read its
// subformat GUID when WFormatTag signals an extensible format.
type waveFormatExtensible struct {
	wca.WAVEFORMATEX
	Samples     uint16
	ChannelMask uint32
	SubFormat   ole.GUID
}

// wasapiEngine implements Engine over the Windows shared-mode
// event-driven audio client. A single capture session runs on one
// locked OS thread for its entire lifetime — COM initialization, the
// capture loop, and teardown all happen there, the pattern the pack's
// session_finder_windows.go calls out explicitly: "it works ... but i
// leave [the thread lock] here for the time being", because COM state is
// thread-affine.
type wasapiEngine struct {
	guard  sessionGuard
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newWASAPIEngine() (*wasapiEngine, error) {
	return &wasapiEngine{}, nil
}

var _ Engine = (*wasapiEngine)(nil)

func (e *wasapiEngine) CheckPermission(_ context.Context, _ PermissionKind) (PermissionStatus, error) {
	// Windows has no OS-level consent gate for either loopback or
	// microphone capture through WASAPI.
	return PermissionGranted, nil
}

func (e *wasapiEngine) RequestPermission(ctx context.Context, kind PermissionKind) (PermissionStatus, error) {
	return e.CheckPermission(ctx, kind)
}

func (e *wasapiEngine) GetDevices(_ context.Context, deviceType DeviceType) ([]Device, error) {
	dataFlow := uint32(wca.ECapture)
	if deviceType == DeviceTypeSystemAudio {
		dataFlow = wca.ERender
	}

	var devices []Device
	err := runOnCOMThread(func() error {
		de, err := newDeviceEnumerator()
		if err != nil {
			return err
		}
		defer de.Release()

		var defaultID string
		var defMMD *wca.IMMDevice
		if err := de.GetDefaultAudioEndpoint(dataFlow, wca.EConsole, &defMMD); err == nil {
			var id string
			if err := defMMD.GetId(&id); err == nil {
				defaultID = id
			}
			defMMD.Release()
		}

		var collection *wca.IMMDeviceCollection
		if err := de.EnumAudioEndpoints(dataFlow, wca.DEVICE_STATE_ACTIVE, &collection); err != nil {
			return fmt.Errorf("enum audio endpoints: %w", err)
		}
		defer collection.Release()

		var count uint32
		if err := collection.GetCount(&count); err != nil {
			return fmt.Errorf("get device count: %w", err)
		}

		for i := uint32(0); i < count; i++ {
			var mmd *wca.IMMDevice
			if err := collection.Item(i, &mmd); err != nil {
				continue
			}

			var id string
			if err := mmd.GetId(&id); err != nil {
				mmd.Release()
				continue
			}
			name, err := deviceFriendlyName(mmd)
			mmd.Release()
			if err != nil {
				name = id
			}

			devices = append(devices, Device{
				ID:        id,
				Type:      deviceType,
				Name:      name,
				IsDefault: id != "" && id == defaultID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (e *wasapiEngine) GetDeviceFormat(_ context.Context, deviceID string) (Format, error) {
	var format Format
	err := runOnCOMThread(func() error {
		de, err := newDeviceEnumerator()
		if err != nil {
			return err
		}
		defer de.Release()

		mmd, _, err := resolveEndpoint(de, deviceID)
		if err != nil {
			return err
		}
		defer mmd.Release()

		var ac *wca.IAudioClient
		if err := mmd.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &ac); err != nil {
			return fmt.Errorf("activate audio client: %w", err)
		}
		defer ac.Release()

		var wfx *wca.WAVEFORMATEX
		if err := ac.GetMixFormat(&wfx); err != nil {
			return fmt.Errorf("get mix format: %w", err)
		}
		defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(wfx)))

		format = Format{
			SampleRate:  int(wfx.NSamplesPerSec),
			Channels:    int(wfx.NChannels),
			BitDepth:    16,
			RawBitDepth: int(wfx.WBitsPerSample),
		}
		return nil
	})
	return format, err
}

// captureSession owns the COM interfaces and Win32 events backing one
// active WASAPI capture, in either plain-capture or loopback mode.
type captureSession struct {
	mmd              *wca.IMMDevice
	ac               *wca.IAudioClient
	acc              *wca.IAudioCaptureClient
	sampleReadyEvent windows.Handle
	stopEvent        windows.Handle
	format           Format
	sampleFmt        sampleFormat
	blockAlign       int
}

func openCaptureSession(deviceType DeviceType, deviceID string) (*captureSession, error) {
	de, err := newDeviceEnumerator()
	if err != nil {
		return nil, err
	}
	defer de.Release()

	mmd, dataFlow, err := resolveEndpoint(de, deviceID)
	if err != nil {
		return nil, err
	}

	wantRender := deviceType == DeviceTypeSystemAudio
	if (dataFlow == wca.ERender) != wantRender {
		mmd.Release()
		return nil, newDeviceError(ErrDeviceTypeMismatch, deviceID, "device resolves to the opposite direction requested", nil)
	}

	var ac *wca.IAudioClient
	if err := mmd.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &ac); err != nil {
		mmd.Release()
		return nil, fmt.Errorf("activate audio client: %w", err)
	}

	var wfx *wca.WAVEFORMATEX
	if err := ac.GetMixFormat(&wfx); err != nil {
		ac.Release()
		mmd.Release()
		return nil, fmt.Errorf("get mix format: %w", err)
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(wfx)))

	sampleFmt := sampleFormatOf(wfx)
	format := Format{
		SampleRate:  int(wfx.NSamplesPerSec),
		Channels:    int(wfx.NChannels),
		BitDepth:    16,
		RawBitDepth: int(wfx.WBitsPerSample),
	}
	blockAlign := int(wfx.NBlockAlign)

	streamFlags := uint32(wca.AUDCLNT_STREAMFLAGS_EVENTCALLBACK)
	if dataFlow == wca.ERender {
		streamFlags |= wca.AUDCLNT_STREAMFLAGS_LOOPBACK
	}

	if err := ac.Initialize(wca.AUDCLNT_SHAREMODE_SHARED, streamFlags, bufferDuration100ns, 0, wfx, nil); err != nil {
		ac.Release()
		mmd.Release()
		return nil, fmt.Errorf("initialize audio client: %w", err)
	}

	sampleReadyEvent, err := windows.CreateEventEx(nil, nil, 0, windows.EVENT_ALL_ACCESS)
	if err != nil {
		ac.Release()
		mmd.Release()
		return nil, fmt.Errorf("create sample-ready event: %w", err)
	}
	if err := ac.SetEventHandle(uintptr(sampleReadyEvent)); err != nil {
		windows.CloseHandle(sampleReadyEvent)
		ac.Release()
		mmd.Release()
		return nil, fmt.Errorf("set event handle: %w", err)
	}

	stopEvent, err := windows.CreateEventEx(nil, nil, 0, windows.EVENT_ALL_ACCESS)
	if err != nil {
		windows.CloseHandle(sampleReadyEvent)
		ac.Release()
		mmd.Release()
		return nil, fmt.Errorf("create stop event: %w", err)
	}

	var acc *wca.IAudioCaptureClient
	if err := ac.GetService(wca.IID_IAudioCaptureClient, &acc); err != nil {
		windows.CloseHandle(sampleReadyEvent)
		windows.CloseHandle(stopEvent)
		ac.Release()
		mmd.Release()
		return nil, fmt.Errorf("get capture client: %w", err)
	}

	if err := ac.Start(); err != nil {
		acc.Release()
		windows.CloseHandle(sampleReadyEvent)
		windows.CloseHandle(stopEvent)
		ac.Release()
		mmd.Release()
		return nil, fmt.Errorf("start audio client: %w", err)
	}

	return &captureSession{
		mmd:              mmd,
		ac:               ac,
		acc:              acc,
		sampleReadyEvent: sampleReadyEvent,
		stopEvent:        stopEvent,
		format:           format,
		sampleFmt:        sampleFmt,
		blockAlign:       blockAlign,
	}, nil
}

func (s *captureSession) close() {
	if s.ac != nil {
		_ = s.ac.Stop()
	}
	if s.acc != nil {
		s.acc.Release()
	}
	if s.ac != nil {
		s.ac.Release()
	}
	if s.mmd != nil {
		s.mmd.Release()
	}
	if s.sampleReadyEvent != 0 {
		windows.CloseHandle(s.sampleReadyEvent)
	}
	if s.stopEvent != 0 {
		windows.CloseHandle(s.stopEvent)
	}
}

func (s *captureSession) convert(raw []byte) []byte {
	switch s.sampleFmt {
	case formatFloat32:
		return pcm.Float32LEToInt16(raw)
	case formatInt24:
		return pcm.Int24LEToInt16(raw)
	case formatInt32:
		return pcm.Int32LEToInt16(raw)
	default:
		return pcm.Int16LEToInt16(raw)
	}
}

func (e *wasapiEngine) Start(_ context.Context, deviceType DeviceType, deviceID string, data DataFunc, errFn ErrorFunc) error {
	if err := e.guard.begin(); err != nil {
		return err
	}

	readyCh := make(chan error, 1)
	stopCh := make(chan struct{})
	e.stopCh = stopCh

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := comInitialize(); err != nil {
			readyCh <- err
			return
		}
		defer ole.CoUninitialize()

		session, err := openCaptureSession(deviceType, deviceID)
		if err != nil {
			readyCh <- err
			return
		}
		defer session.close()

		readyCh <- nil
		runCaptureLoop(session, stopCh, data, errFn)
	}()

	if err := <-readyCh; err != nil {
		e.guard.end(func() {})
		return err
	}
	return nil
}

func (e *wasapiEngine) Stop() error {
	e.guard.end(func() {
		if e.stopCh != nil {
			close(e.stopCh)
		}
	})
	e.wg.Wait()
	return nil
}

// runCaptureLoop waits on the WASAPI sample-ready event and drains
// packets until either a platform error or the session's stop event
// fires, mirroring the event-driven loop the pack's oto WASAPI driver
// runs for playback, adapted here for capture.
func runCaptureLoop(s *captureSession, stopCh chan struct{}, data DataFunc, errFn ErrorFunc) {
	// A watcher goroutine turns the Go stopCh close into a Win32 event
	// signal, since the wait below blocks the OS thread and cannot
	// select on a channel directly.
	go func() {
		<-stopCh
		windows.SetEvent(s.stopEvent)
	}()

	handles := []windows.Handle{s.sampleReadyEvent, s.stopEvent}
	for {
		evt, err := windows.WaitForMultipleObjects(handles, false, windows.INFINITE)
		if err != nil {
			errFn(newDeviceError(ErrDeviceDisconnected, "", "wait for capture event failed", err))
			return
		}
		switch evt {
		case windows.WAIT_OBJECT_0 + 1:
			return
		case windows.WAIT_OBJECT_0:
			if err := drainPackets(s, data); err != nil {
				errFn(newDeviceError(ErrDeviceDisconnected, "", "capture client failed", err))
				return
			}
		default:
			errFn(newDeviceError(ErrDeviceDisconnected, "", "unexpected wait result", nil))
			return
		}
	}
}

func drainPackets(s *captureSession, data DataFunc) error {
	for {
		var packetLength uint32
		if err := s.acc.GetNextPacketSize(&packetLength); err != nil {
			return fmt.Errorf("get next packet size: %w", err)
		}
		if packetLength == 0 {
			return nil
		}

		var buf *byte
		var frames uint32
		var flags uint32
		var devicePosition uint64
		var qpcPosition uint64
		if err := s.acc.GetBuffer(&buf, &frames, &flags, &devicePosition, &qpcPosition); err != nil {
			return fmt.Errorf("get buffer: %w", err)
		}
		if frames == 0 {
			continue
		}

		var out []byte
		if flags&wca.AUDCLNT_BUFFERFLAGS_SILENT != 0 {
			out = pcm.Silence(int(frames), s.format.Channels)
		} else {
			raw := unsafe.Slice(buf, int(frames)*s.blockAlign)
			out = s.convert(raw)
		}

		if err := s.acc.ReleaseBuffer(frames); err != nil {
			return fmt.Errorf("release buffer: %w", err)
		}

		data(out, s.format)
	}
}

func sampleFormatOf(wfx *wca.WAVEFORMATEX) sampleFormat {
	isFloat := wfx.WFormatTag == waveFormatIEEEFloat
	if wfx.WFormatTag == waveFormatExtensibleTag {
		ext := (*waveFormatExtensible)(unsafe.Pointer(wfx))
		isFloat = guidEqual(&ext.SubFormat, subtypeIEEEFloat)
	}
	if isFloat {
		return formatFloat32
	}
	switch wfx.WBitsPerSample {
	case 24:
		return formatInt24
	case 32:
		return formatInt32
	default:
		return formatInt16
	}
}

func guidEqual(a, b *ole.GUID) bool {
	return *a == *b
}

func newDeviceEnumerator() (*wca.IMMDeviceEnumerator, error) {
	var de *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &de); err != nil {
		return nil, fmt.Errorf("create device enumerator: %w", err)
	}
	return de, nil
}

func resolveEndpoint(de *wca.IMMDeviceEnumerator, deviceID string) (*wca.IMMDevice, uint32, error) {
	var mmd *wca.IMMDevice
	if err := de.GetDevice(deviceID, &mmd); err != nil {
		return nil, 0, newDeviceError(ErrDeviceNotFound, deviceID, "device not found", err)
	}

	dispatch, err := mmd.QueryInterface(wca.IID_IMMEndpoint)
	if err != nil {
		mmd.Release()
		return nil, 0, fmt.Errorf("query IMMEndpoint: %w", err)
	}
	endpoint := (*wca.IMMEndpoint)(unsafe.Pointer(dispatch))
	defer endpoint.Release()

	var dataFlow uint32
	if err := endpoint.GetDataFlow(&dataFlow); err != nil {
		mmd.Release()
		return nil, 0, fmt.Errorf("get data flow: %w", err)
	}
	return mmd, dataFlow, nil
}

func deviceFriendlyName(mmd *wca.IMMDevice) (string, error) {
	var ps *wca.IPropertyStore
	if err := mmd.OpenPropertyStore(wca.STGM_READ, &ps); err != nil {
		return "", fmt.Errorf("open property store: %w", err)
	}
	defer ps.Release()

	var pv wca.PROPVARIANT
	if err := ps.GetValue(&wca.PKEY_Device_FriendlyName, &pv); err != nil {
		return "", fmt.Errorf("get friendly name: %w", err)
	}
	return pv.String(), nil
}

// comInitialize tolerates the "already initialized on this thread"
// result the way the pack's session_finder_windows.go does, rather than
// treating it as fatal.
func comInitialize() error {
	err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
	if err == nil {
		return nil
	}
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) && oleErr.Code() == 1 { // S_FALSE: redundant call, not an error
		return nil
	}
	return fmt.Errorf("CoInitializeEx: %w", err)
}

// runOnCOMThread runs fn on a dedicated, freshly COM-initialized OS
// thread and waits for it to finish. Used for the infrequent enumeration
// and format-query calls; the hot capture path instead keeps its own
// thread alive for the session's lifetime (see Start).
func runOnCOMThread(fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := comInitialize(); err != nil {
			errCh <- err
			return
		}
		defer ole.CoUninitialize()
		errCh <- fn()
	}()
	return <-errCh
}
