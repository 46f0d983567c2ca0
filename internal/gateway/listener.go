// Package gateway ingests sample fragments that arrive over the
// network. Field deployments pair the acquisition board with an ESP32
// WiFi bridge that forwards every notification payload as one UDP
// datagram; the listener hands each datagram to the session as a
// delivery fragment. The package also replays captured bridge traffic
// from pcap files through the same path.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// FragmentHandler consumes one transport delivery. telemetry.Session
// satisfies it.
type FragmentHandler interface {
	HandleFragment(data []byte, arrival time.Time) error
}

// FragmentHandlerFunc adapts a function to the FragmentHandler interface.
type FragmentHandlerFunc func(data []byte, arrival time.Time) error

// HandleFragment calls f.
func (f FragmentHandlerFunc) HandleFragment(data []byte, arrival time.Time) error {
	return f(data, arrival)
}

// maxFragmentBytes bounds one datagram read. The bridge copies BLE
// notification payloads verbatim, which the MTU caps far below this.
const maxFragmentBytes = 2048

// UDPListener receives bridge datagrams and feeds them to a
// FragmentHandler as delivery fragments stamped with their arrival time.
type UDPListener struct {
	address       string
	rcvBuf        int
	logInterval   time.Duration
	stats         PacketStatsInterface
	handler       FragmentHandler
	socketFactory UDPSocketFactory

	mu   sync.Mutex
	conn UDPSocket
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int
	LogInterval   time.Duration
	Stats         PacketStatsInterface
	Handler       FragmentHandler
	SocketFactory UDPSocketFactory
}

// NewUDPListener creates a new UDP listener with the provided
// configuration. Stats defaults to a no-op collector, the log interval
// to one minute, and the socket factory to real UDP sockets.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	factory := config.SocketFactory
	if factory == nil {
		factory = NewRealUDPSocketFactory()
	}

	return &UDPListener{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		logInterval:   logInterval,
		stats:         stats,
		handler:       config.Handler,
		socketFactory: factory,
	}
}

// Start listens for datagrams until the context is cancelled, the
// session stops accepting fragments, or a fragment fails to persist.
// Persistence failures are returned rather than logged away: an ingest
// path that cannot store what it acknowledges must stop.
func (l *UDPListener) Start(ctx context.Context) error {
	if l.handler == nil {
		return errors.New("UDP listener requires a fragment handler")
	}

	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.socketFactory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.setConn(conn)
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	log.Printf("UDP gateway listening on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)

	go l.startStatsLogging(ctx)

	buffer := make([]byte, maxFragmentBytes)

	for {
		select {
		case <-ctx.Done():
			log.Print("UDP gateway stopping due to context cancellation")
			return ctx.Err()
		default:
			// Short read deadline so context cancellation is noticed
			// between datagrams.
			if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
				log.Printf("UDP gateway failed to set read deadline: %v", err)
			}

			n, raddr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("UDP read error: %v", err)
				continue
			}

			arrival := time.Now()
			if err := l.handleFragment(buffer[:n], arrival); err != nil {
				if errors.Is(err, telemetry.ErrSessionClosed) {
					log.Print("UDP gateway stopping: session no longer accepts fragments")
					return nil
				}
				return fmt.Errorf("failed to handle fragment from %v: %w", raddr, err)
			}
		}
	}
}

// handleFragment accounts for one datagram and hands it to the session.
func (l *UDPListener) handleFragment(data []byte, arrival time.Time) error {
	l.stats.AddFragment(len(data))
	if err := l.handler.HandleFragment(data, arrival); err != nil {
		if errors.Is(err, telemetry.ErrSessionClosed) {
			l.stats.AddRejected()
		}
		return err
	}
	return nil
}

// startStatsLogging periodically logs fragment statistics. An initial
// report fires shortly after startup so the first minute is not silent.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

func (l *UDPListener) setConn(conn UDPSocket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = conn
}

// LocalAddr returns the bound address once Start has opened the socket,
// or nil before that. With port 0 configured this reports the port the
// kernel picked.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close closes the UDP listener and releases resources.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
