package audio

// DeviceType distinguishes the two device namespaces the engine exposes.
// The two namespaces are structurally different on every platform: a
// microphone is a real endpoint with a stable hardware-derived id, while
// system audio is either a loopback view of a render endpoint (Windows) or
// a synthetic capability with no endpoint object at all (macOS).
type DeviceType string

const (
	DeviceTypeMicrophone  DeviceType = "microphone"
	DeviceTypeSystemAudio DeviceType = "system-audio"
)

// SystemAudioDeviceID is the reserved id for the single macOS system-audio
// capability, which has no underlying endpoint to enumerate. Windows
// system-audio devices use the real render-endpoint id instead, since
// loopback capture there is tied to a specific rendering device.
const SystemAudioDeviceID = "system"

// Device describes one capturable endpoint. IsDefault reflects the
// platform's current default marking at enumeration time and is not
// updated afterward; a session started against a default device keeps
// capturing from that device even if the OS default later changes.
type Device struct {
	ID        string
	Type      DeviceType
	Name      string
	IsDefault bool
}

// Format describes the PCM layout the engine delivers to the data
// callback. The engine always delivers signed 16-bit little-endian PCM
// (BitDepth is always 16); Format reports the negotiated sample rate and
// channel count — on Windows the device's own mix format, not resampled or
// remapped (see Non-goals); on macOS a fixed 48 kHz stereo that the OS
// converts to — plus RawBitDepth, the device's native sample width before
// conversion down to 16-bit.
type Format struct {
	SampleRate  int
	Channels    int
	BitDepth    int
	RawBitDepth int
}
