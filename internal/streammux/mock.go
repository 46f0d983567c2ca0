package streammux

import (
	"bytes"
	"errors"
	"io"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// MockStreamPort implements StreamPorter for testing
type MockStreamPort struct {
	io.Reader
	io.WriteCloser
}

func (m *MockStreamPort) Write(p []byte) (n int, err error) {
	return m.WriteCloser.Write(p)
}

// NewMockStreamMux creates a StreamMux instance backed by a mock port that
// synthesizes NPG-Lite sample records at roughly the requested rate. Records
// are emitted in bursts so fragment boundaries resemble real notification
// traffic.
func NewMockStreamMux(sampleRateHz float64) *StreamMux[*MockStreamPort] {
	if sampleRateHz <= 0 {
		sampleRateHz = telemetry.DefaultSampleRate
	}

	r, w := io.Pipe()
	f, err := os.CreateTemp(".", "mock_stream_port")
	if err != nil {
		panic("failed to create temp file for mock stream port: " + err.Error())
	}
	log.Printf("Writing mock stream port received commands at %s", f.Name())

	mockPort := &MockStreamPort{
		Reader:      r,
		WriteCloser: f,
	}

	// generate record bursts periodically to simulate device notifications
	go func() {
		defer w.Close()
		const burst = 25
		interval := time.Duration(float64(burst) * float64(time.Second) / sampleRateHz)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var counter uint8
		var phase float64
		buf := make([]byte, 0, burst*telemetry.RecordSize)
		for range ticker.C {
			buf = buf[:0]
			for i := 0; i < burst; i++ {
				s := telemetry.Sample{Counter: counter}
				for ch := 0; ch < telemetry.NumChannels; ch++ {
					// mid-rail sine sweep, one phase step per sample
					v := 2048 + 512*math.Sin(phase+float64(ch))
					s.Channels[ch] = uint16(v)
				}
				buf = telemetry.AppendSample(buf, s)
				counter++
				phase += 0.05
			}
			if _, err := w.Write(buf); err != nil {
				return
			}
		}
	}()

	return NewStreamMux(mockPort)
}

// TestableStreamPort is an in-memory StreamPorter for exercising the mux.
// Reads drain a buffer fed by AddReadData and writes are captured for
// inspection through Written. The exported fields are read by the port's
// own methods under an internal lock; set them before handing the port to
// a mux.
type TestableStreamPort struct {
	// BlockReads makes Read wait for data or Close when the buffer is
	// empty, mimicking a quiet device. Without it an empty buffer reads
	// as EOF.
	BlockReads bool

	// ReadError and WriteError are returned by the next matching call,
	// then cleared.
	ReadError  error
	WriteError error

	mu       sync.Mutex
	dataCond *sync.Cond
	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	timeout  time.Duration
	closed   bool
}

// NewTestableStreamPort creates an open TestableStreamPort with empty buffers.
func NewTestableStreamPort() *TestableStreamPort {
	p := &TestableStreamPort{}
	p.dataCond = sync.NewCond(&p.mu)
	return p
}

func (p *TestableStreamPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.EOF
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	if p.BlockReads {
		for !p.closed && p.readBuf.Len() == 0 {
			p.dataCond.Wait()
		}
		if p.closed {
			return 0, io.EOF
		}
	}
	return p.readBuf.Read(buf)
}

func (p *TestableStreamPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errors.New("write on closed stream port")
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.writeBuf.Write(data)
}

// Close marks the port closed and wakes any reader blocked on an empty
// buffer. Subsequent reads return io.EOF.
func (p *TestableStreamPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.dataCond.Broadcast()
	return nil
}

// SetReadTimeout implements TimeoutStreamPorter by recording the timeout.
func (p *TestableStreamPort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timeout = timeout
	return nil
}

// ReadTimeout reports the most recent value passed to SetReadTimeout.
func (p *TestableStreamPort) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.timeout
}

// AddReadData appends bytes for subsequent reads and wakes a blocked reader.
func (p *TestableStreamPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readBuf.Write(data)
	p.dataCond.Signal()
}

// Written returns a copy of everything written to the port so far.
func (p *TestableStreamPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.writeBuf.Bytes()...)
}
