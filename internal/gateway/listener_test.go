package gateway

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// MockGatewayStats implements PacketStatsInterface for testing.
type MockGatewayStats struct {
	mu            sync.Mutex
	fragmentCount int
	byteCount     int
	rejectedCount int
	logCalls      int
}

func (m *MockGatewayStats) AddFragment(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fragmentCount++
	m.byteCount += bytes
}

func (m *MockGatewayStats) AddRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectedCount++
}

func (m *MockGatewayStats) LogStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logCalls++
}

func (m *MockGatewayStats) FragmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fragmentCount
}

func (m *MockGatewayStats) ByteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byteCount
}

func (m *MockGatewayStats) RejectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejectedCount
}

// recordingHandler implements FragmentHandler and collects deliveries.
type recordingHandler struct {
	mu        sync.Mutex
	fragments [][]byte
	arrivals  []time.Time
	err       error
}

func (h *recordingHandler) HandleFragment(data []byte, arrival time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	h.fragments = append(h.fragments, buf)
	h.arrivals = append(h.arrivals, arrival)
	return nil
}

func (h *recordingHandler) Fragments() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.fragments))
	copy(out, h.fragments)
	return out
}

func (h *recordingHandler) Arrivals() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Time, len(h.arrivals))
	copy(out, h.arrivals)
	return out
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestNewUDPListener_Defaults(t *testing.T) {
	listener := NewUDPListener(UDPListenerConfig{
		Address: ":9000",
		RcvBuf:  1024 * 1024,
	})

	if listener == nil {
		t.Fatal("NewUDPListener returned nil")
	}
	if listener.address != ":9000" {
		t.Errorf("Expected address ':9000', got '%s'", listener.address)
	}
	if listener.rcvBuf != 1024*1024 {
		t.Errorf("Expected rcvBuf %d, got %d", 1024*1024, listener.rcvBuf)
	}
	// Check default log interval is set
	if listener.logInterval != time.Minute {
		t.Errorf("Expected default log interval 1 minute, got %v", listener.logInterval)
	}
	// stats should be noopStats by default
	if listener.stats == nil {
		t.Error("Expected default noop stats, got nil")
	}
	if listener.socketFactory == nil {
		t.Error("Expected default socket factory, got nil")
	}
}

func TestNewUDPListener_WithStats(t *testing.T) {
	stats := &MockGatewayStats{}
	listener := NewUDPListener(UDPListenerConfig{
		Address:     ":9000",
		RcvBuf:      1024 * 1024,
		Stats:       stats,
		LogInterval: 30 * time.Second,
	})

	if listener.stats != stats {
		t.Error("Expected custom stats to be used")
	}
	if listener.logInterval != 30*time.Second {
		t.Errorf("Expected log interval 30s, got %v", listener.logInterval)
	}
}

func TestUDPListener_RequiresHandler(t *testing.T) {
	listener := NewUDPListener(UDPListenerConfig{Address: ":9000"})

	err := listener.Start(context.Background())
	if err == nil {
		t.Fatal("expected error for missing handler, got nil")
	}
	if !strings.Contains(err.Error(), "fragment handler") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUDPListener_DeliversFragments(t *testing.T) {
	payload1 := make([]byte, 175)
	for i := range payload1 {
		payload1[i] = byte(i)
	}
	payload2 := []byte{0x01, 0x02, 0x03}
	sender := &net.UDPAddr{IP: net.ParseIP("192.168.1.50"), Port: 4210}

	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: payload1, Addr: sender},
		{Data: payload2, Addr: sender},
	})
	factory := NewMockUDPSocketFactory(socket)

	handler := &recordingHandler{}
	stats := &MockGatewayStats{}
	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:9000",
		RcvBuf:        65536,
		Stats:         stats,
		Handler:       handler,
		SocketFactory: factory,
		LogInterval:   time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	waitFor(t, func() bool { return len(handler.Fragments()) == 2 })
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not exit after cancellation")
	}

	got := handler.Fragments()
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(got))
	}
	if !bytes.Equal(got[0], payload1) {
		t.Error("first fragment does not match sent payload")
	}
	if !bytes.Equal(got[1], payload2) {
		t.Error("second fragment does not match sent payload")
	}
	if stats.FragmentCount() != 2 {
		t.Errorf("expected 2 fragments counted, got %d", stats.FragmentCount())
	}
	if stats.ByteCount() != 178 {
		t.Errorf("expected 178 bytes counted, got %d", stats.ByteCount())
	}
	if socket.ReadBufferSize != 65536 {
		t.Errorf("expected read buffer 65536, got %d", socket.ReadBufferSize)
	}
}

func TestUDPListener_SessionClosedStopsCleanly(t *testing.T) {
	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte{0x00}, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.50"), Port: 4210}},
	})
	factory := NewMockUDPSocketFactory(socket)

	handler := &recordingHandler{err: telemetry.ErrSessionClosed}
	stats := &MockGatewayStats{}
	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:9000",
		Stats:         stats,
		Handler:       handler,
		SocketFactory: factory,
		LogInterval:   time.Hour,
	})

	done := make(chan error, 1)
	go func() { done <- listener.Start(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop on closed session, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on closed session")
	}

	if stats.RejectedCount() != 1 {
		t.Errorf("expected 1 rejected fragment, got %d", stats.RejectedCount())
	}
}

func TestUDPListener_HandlerFailureStopsIngest(t *testing.T) {
	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte{0x00}, Addr: &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 4210}},
	})
	factory := NewMockUDPSocketFactory(socket)

	writeErr := errors.New("disk full")
	handler := &recordingHandler{err: writeErr}
	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:9000",
		Handler:       handler,
		SocketFactory: factory,
		LogInterval:   time.Hour,
	})

	done := make(chan error, 1)
	go func() { done <- listener.Start(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, writeErr) {
			t.Fatalf("expected wrapped handler error, got %v", err)
		}
		if !strings.Contains(err.Error(), "failed to handle fragment") {
			t.Errorf("unexpected error message: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on handler failure")
	}
}

func TestUDPListener_ListenError(t *testing.T) {
	factory := NewMockUDPSocketFactory(nil)
	factory.Error = errors.New("address already in use")

	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:9000",
		Handler:       &recordingHandler{},
		SocketFactory: factory,
	})

	err := listener.Start(context.Background())
	if err == nil {
		t.Fatal("expected listen error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to listen on UDP address") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUDPListener_BadAddress(t *testing.T) {
	listener := NewUDPListener(UDPListenerConfig{
		Address: "127.0.0.1:notaport",
		Handler: &recordingHandler{},
	})

	err := listener.Start(context.Background())
	if err == nil {
		t.Fatal("expected resolve error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to resolve UDP address") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUDPListener_LocalAddr(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	factory := NewMockUDPSocketFactory(socket)

	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:0",
		Handler:       &recordingHandler{},
		SocketFactory: factory,
		LogInterval:   time.Hour,
	})

	if listener.LocalAddr() != nil {
		t.Error("expected nil LocalAddr before Start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	waitFor(t, func() bool { return listener.LocalAddr() != nil })

	addr, ok := listener.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("expected *net.UDPAddr, got %T", listener.LocalAddr())
	}
	if addr.Port != 9000 {
		t.Errorf("expected mock port 9000, got %d", addr.Port)
	}

	cancel()
	<-done
}

func TestUDPListener_Close_Nil(t *testing.T) {
	listener := &UDPListener{}

	// Close with nil connection should not error
	err := listener.Close()
	if err != nil {
		t.Errorf("Close with nil conn returned error: %v", err)
	}
}

func TestNoopStats(t *testing.T) {
	stats := &noopStats{}

	// These should all be no-ops and not panic
	stats.AddFragment(100)
	stats.AddRejected()
	stats.LogStats()
}

// TestUDPListener_RealSocket drives the listener end to end over
// loopback with the default socket factory.
func TestUDPListener_RealSocket(t *testing.T) {
	received := make(chan []byte, 1)
	handler := FragmentHandlerFunc(func(data []byte, arrival time.Time) error {
		buf := make([]byte, len(data))
		copy(buf, data)
		select {
		case received <- buf:
		default:
		}
		return nil
	})

	listener := NewUDPListener(UDPListenerConfig{
		Address:     "127.0.0.1:0",
		Handler:     handler,
		LogInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	waitFor(t, func() bool { return listener.LocalAddr() != nil })

	conn, err := net.Dial("udp", listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer conn.Close()

	payload := []byte{0x07, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("failed to send datagram: %v", err)
	}

	select {
	case got := <-received:
		if !bytes.Equal(got, payload) {
			t.Errorf("received %v, want %v", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram was not delivered")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not exit after cancellation")
	}
}
