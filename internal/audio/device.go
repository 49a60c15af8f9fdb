package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"

	"github.com/lexiqai/misa/internal/faults"
)

// Source produces little-endian 16-bit mono PCM frames.
// Pause and Resume must be safe to call while Read is blocked in another goroutine.
type Source interface {
	// Read blocks until one frame is available. A zero-length frame with a
	// nil error means the source has nothing more for this cycle.
	Read(ctx context.Context) ([]byte, error)
	Pause() error
	Resume() error
	SampleRate() int
	Close() error
}

// Sink plays interleaved 16-bit PCM until done or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, samples []int16, sampleRate, channels int) error
}

// Initialize initializes the PortAudio library; pair with Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return faults.Wrap(faults.MissingResource, "audio", fmt.Errorf("failed to initialize portaudio: %w", err))
	}
	return nil
}

// Terminate releases the PortAudio library
func Terminate() {
	if err := portaudio.Terminate(); err != nil {
		log.Warn().Err(err).Msg("Failed to terminate portaudio")
	}
}

// DeviceInfo describes one audio device
type DeviceInfo struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// ListDevices returns every audio device PortAudio can see
func ListDevices() ([]DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}

	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		info := DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}

// findInputDevice returns the device whose name contains name
// (case-insensitive), or the system default input when name is empty.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, faults.Wrap(faults.MissingResource, "microphone", fmt.Errorf("no default input device: %w", err))
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, faults.Wrap(faults.MissingResource, "microphone", fmt.Errorf("input device %q not found", name))
}

// MicrophoneConfig configures a Microphone
type MicrophoneConfig struct {
	DeviceName      string
	SampleRate      int
	FramesPerBuffer int
}

// Microphone captures mono 16-bit PCM from a PortAudio input device.
type Microphone struct {
	cfg    MicrophoneConfig
	stream *portaudio.Stream
	buf    []int16

	mu       sync.Mutex
	paused   bool
	resumed  chan struct{} // closed on Resume; replaced on Pause
	closed   bool
	started  bool
	overflow int
}

// OpenMicrophone opens and starts the capture stream
func OpenMicrophone(cfg MicrophoneConfig) (*Microphone, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 2048
	}

	dev, err := findInputDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	m := &Microphone{
		cfg:     cfg,
		buf:     make([]int16, cfg.FramesPerBuffer),
		resumed: make(chan struct{}),
	}
	close(m.resumed)

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, m.buf)
	if err != nil {
		return nil, faults.Wrap(faults.MissingResource, "microphone", fmt.Errorf("failed to open input %q: %w", dev.Name, err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, faults.Wrap(faults.Capture, "microphone", fmt.Errorf("failed to start input stream: %w", err))
	}
	m.stream = stream
	m.started = true

	log.Info().
		Str("device", dev.Name).
		Int("sample_rate", cfg.SampleRate).
		Int("frames_per_buffer", cfg.FramesPerBuffer).
		Msg("Microphone opened")

	return m, nil
}

// Read blocks for one buffer of audio. While paused it waits for Resume
// without touching the device.
func (m *Microphone) Read(ctx context.Context) ([]byte, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, io.EOF
		}
		if m.paused {
			wait := m.resumed
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-wait:
				continue
			}
		}

		err := m.stream.Read()
		if err != nil && errors.Is(err, portaudio.InputOverflowed) {
			// Dropped input is tolerable; the frame still holds audio
			m.overflow++
			err = nil
		}
		if err != nil {
			m.mu.Unlock()
			return nil, faults.Wrap(faults.Capture, "microphone", fmt.Errorf("failed to read input stream: %w", err))
		}
		frame := SamplesToBytes(m.buf)
		m.mu.Unlock()
		return frame, nil
	}
}

// Pause stops the input stream. Calling Pause twice is a no-op.
func (m *Microphone) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused || m.closed {
		return nil
	}
	m.paused = true
	m.resumed = make(chan struct{})
	if m.started {
		m.started = false
		if err := m.stream.Stop(); err != nil {
			return fmt.Errorf("failed to pause input stream: %w", err)
		}
	}
	return nil
}

// Resume restarts the input stream. Calling Resume twice is a no-op.
func (m *Microphone) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.paused || m.closed {
		return nil
	}
	m.paused = false
	close(m.resumed)
	if !m.started {
		if err := m.stream.Start(); err != nil {
			return fmt.Errorf("failed to resume input stream: %w", err)
		}
		m.started = true
	}
	return nil
}

// SampleRate returns the capture sample rate in Hz
func (m *Microphone) SampleRate() int {
	return m.cfg.SampleRate
}

// Close stops and closes the input stream
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.paused {
		close(m.resumed)
	}
	if m.overflow > 0 {
		log.Debug().Int("overflows", m.overflow).Msg("Microphone input overflowed during session")
	}
	if m.started {
		m.stream.Stop()
	}
	return m.stream.Close()
}

// Speaker plays PCM on the default output device. Each Play opens a stream
// for the clip's format, so clips with different sample rates can follow
// each other.
type Speaker struct {
	framesPerBuffer int
	mu              sync.Mutex // one clip at a time
}

// NewSpeaker creates a speaker writing framesPerBuffer frames per write
func NewSpeaker(framesPerBuffer int) *Speaker {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	return &Speaker{framesPerBuffer: framesPerBuffer}
}

// Play writes samples buffer by buffer. Cancelling ctx aborts the stream
// so output stops within one buffer; the ctx error is returned.
func (s *Speaker) Play(ctx context.Context, samples []int16, sampleRate, channels int) error {
	if len(samples) == 0 {
		return nil
	}
	if channels <= 0 {
		channels = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]int16, s.framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), s.framesPerBuffer, buf)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			stream.Abort()
			return err
		}

		n := copy(buf, samples[off:])
		// Zero-fill the tail of the last buffer
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}

		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			stream.Abort()
			return fmt.Errorf("failed to write output stream: %w", err)
		}
	}

	return stream.Stop()
}
