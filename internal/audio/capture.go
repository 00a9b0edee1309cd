// Package audio captures microphone input for local transcription.
package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
)

// Capture defaults
const (
	DefaultFramesPerBuffer = 1024
	DefaultBufferSize      = 64 // chunks queued before capture starts dropping
)

// Chunk is one buffer of mono float32 samples.
type Chunk struct {
	Data      []float32
	DeviceID  string
	Timestamp int64
}

// Capturer reads a single input device with backpressure: when the consumer
// falls behind, chunks are dropped instead of stalling the device.
type Capturer struct {
	outCh        chan Chunk
	sampleRate   int
	framesPerBuf int
	deviceHint   string

	mu       sync.Mutex
	running  bool
	stream   *portaudio.Stream
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce *sync.Once
}

// NewCapturer creates a capturer. deviceHint, when set, picks the first input
// device whose name contains it; otherwise the host default input is used.
func NewCapturer(sampleRate, framesPerBuf int, deviceHint string) *Capturer {
	if framesPerBuf <= 0 {
		framesPerBuf = DefaultFramesPerBuffer
	}
	return &Capturer{
		outCh:        make(chan Chunk, DefaultBufferSize),
		sampleRate:   sampleRate,
		framesPerBuf: framesPerBuf,
		deviceHint:   deviceHint,
	}
}

// Output returns the channel for receiving audio chunks. It is closed when
// capture stops.
func (c *Capturer) Output() <-chan Chunk { return c.outCh }

// Start opens the input device and begins streaming chunks.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return apperrors.Wrap(err, apperrors.CapabilityUnavailable, "initialize audio")
	}
	dev, err := inputDevice(c.deviceHint)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: c.framesPerBuf,
	}
	buf := make([]float32, c.framesPerBuf)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return apperrors.Wrapf(err, apperrors.CapabilityUnavailable, "open %s", dev.Name)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		return apperrors.Wrapf(err, apperrors.CapabilityUnavailable, "start %s", dev.Name)
	}

	devCtx, cancel := context.WithCancel(ctx)
	c.stream = stream
	c.cancel = cancel
	c.done = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.running = true
	slog.Info("started audio capture", "device", dev.Name, "sample_rate", c.sampleRate)

	go c.read(devCtx, stream, buf, dev.Name, c.done)
	return nil
}

func (c *Capturer) read(ctx context.Context, stream *portaudio.Stream, buf []float32, deviceID string, done chan struct{}) {
	defer close(done)
	defer close(c.outCh)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			slog.Debug("audio read error", "device", deviceID, "error", err)
			return
		}

		chunk := Chunk{
			Data:      append([]float32(nil), buf...),
			DeviceID:  deviceID,
			Timestamp: time.Now().UnixNano(),
		}
		select {
		case c.outCh <- chunk:
		default:
			slog.Debug("audio buffer full, dropping chunk", "device", deviceID)
		}
	}
}

// Stop ends capture and releases the device. The capturer cannot be restarted.
func (c *Capturer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	stream, cancel, done, once := c.stream, c.cancel, c.done, c.stopOnce
	c.running = false
	c.mu.Unlock()

	once.Do(func() {
		cancel()
		_ = stream.Stop()
		<-done
		_ = stream.Close()
		_ = portaudio.Terminate()
	})
}

// Probe reports whether the host has a usable input device. It is cheap
// enough to run once at startup.
func Probe(deviceHint string) error {
	if err := portaudio.Initialize(); err != nil {
		return apperrors.Wrap(err, apperrors.CapabilityUnavailable, "initialize audio")
	}
	defer func() { _ = portaudio.Terminate() }()

	_, err := inputDevice(deviceHint)
	return err
}

// inputDevice must be called between Initialize and Terminate.
func inputDevice(hint string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CapabilityUnavailable, "list audio devices")
	}
	def, _ := portaudio.DefaultInputDevice()
	if dev := selectInput(devices, hint, def); dev != nil {
		return dev, nil
	}
	if hint != "" {
		return nil, apperrors.Newf(apperrors.CapabilityUnavailable, "no input device matching %q", hint)
	}
	return nil, apperrors.New(apperrors.CapabilityUnavailable, "no input device")
}

// selectInput picks the device to record from: the first input whose name
// contains hint, else the default input, else any built-in microphone, else
// the first input at all.
func selectInput(devices []*portaudio.DeviceInfo, hint string, def *portaudio.DeviceInfo) *portaudio.DeviceInfo {
	var inputs []*portaudio.DeviceInfo
	for _, dev := range devices {
		if dev != nil && dev.MaxInputChannels > 0 {
			inputs = append(inputs, dev)
		}
	}

	if hint != "" {
		for _, dev := range inputs {
			if containsFold(dev.Name, hint) {
				return dev
			}
		}
		return nil
	}
	if def != nil && def.MaxInputChannels > 0 {
		return def
	}
	for _, dev := range inputs {
		if containsFold(dev.Name, "built-in") || containsFold(dev.Name, "macbook") {
			return dev
		}
	}
	if len(inputs) > 0 {
		return inputs[0]
	}
	return nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
