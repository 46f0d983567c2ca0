package gateway

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// capturedPacket describes one UDP datagram to synthesize into a test
// capture. Timestamps must be whole microseconds to survive the classic
// pcap format round trip.
type capturedPacket struct {
	payload []byte
	dstPort layers.UDPPort
	ts      time.Time
}

// writeTestCapture builds a pcap file containing the given UDP packets
// and returns its path.
func writeTestCapture(t *testing.T, packets []capturedPacket) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create capture file: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("failed to write capture header: %v", err)
	}

	for _, pkt := range packets {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
			DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IP{192, 168, 1, 50},
			DstIP:    net.IP{192, 168, 1, 10},
		}
		udp := &layers.UDP{
			SrcPort: 4210,
			DstPort: pkt.dstPort,
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("failed to set checksum layer: %v", err)
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(pkt.payload)); err != nil {
			t.Fatalf("failed to serialize packet: %v", err)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     pkt.ts,
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := w.WritePacket(ci, buf.Bytes()); err != nil {
			t.Fatalf("failed to write packet: %v", err)
		}
	}

	return path
}

func TestReplayPCAPFile_DeliversPayloads(t *testing.T) {
	base := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	payloadA := bytes.Repeat([]byte{0xAA}, 175)
	payloadB := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}

	path := writeTestCapture(t, []capturedPacket{
		{payload: payloadA, dstPort: 9000, ts: base},
		{payload: []byte{0xFF}, dstPort: 5353, ts: base.Add(50 * time.Millisecond)},
		{payload: payloadB, dstPort: 9000, ts: base.Add(100 * time.Millisecond)},
	})

	handler := &recordingHandler{}
	stats := &MockGatewayStats{}
	err := ReplayPCAPFile(context.Background(), path, ReplayConfig{
		UDPPort: 9000,
		Stats:   stats,
		Handler: handler,
	})
	if err != nil {
		t.Fatalf("ReplayPCAPFile returned error: %v", err)
	}

	got := handler.Fragments()
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments after port filtering, got %d", len(got))
	}
	if !bytes.Equal(got[0], payloadA) {
		t.Error("first fragment does not match captured payload")
	}
	if !bytes.Equal(got[1], payloadB) {
		t.Error("second fragment does not match captured payload")
	}
	if stats.FragmentCount() != 2 {
		t.Errorf("expected 2 fragments counted, got %d", stats.FragmentCount())
	}

	// Fragments carry the capture timestamps, not the replay wall clock.
	arrivals := handler.Arrivals()
	if !arrivals[0].Equal(base) {
		t.Errorf("expected capture timestamp %v, got %v", base, arrivals[0])
	}
	if !arrivals[1].Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("expected capture timestamp %v, got %v", base.Add(100*time.Millisecond), arrivals[1])
	}
}

func TestReplayPCAPFile_NoPortFilter(t *testing.T) {
	base := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	path := writeTestCapture(t, []capturedPacket{
		{payload: []byte{0x01}, dstPort: 9000, ts: base},
		{payload: []byte{0x02}, dstPort: 5353, ts: base.Add(time.Millisecond)},
	})

	handler := &recordingHandler{}
	err := ReplayPCAPFile(context.Background(), path, ReplayConfig{Handler: handler})
	if err != nil {
		t.Fatalf("ReplayPCAPFile returned error: %v", err)
	}
	if len(handler.Fragments()) != 2 {
		t.Fatalf("expected both fragments without port filter, got %d", len(handler.Fragments()))
	}
}

func TestReplayPCAPFile_SessionClosed(t *testing.T) {
	base := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	path := writeTestCapture(t, []capturedPacket{
		{payload: []byte{0x01}, dstPort: 9000, ts: base},
	})

	stats := &MockGatewayStats{}
	handler := &recordingHandler{err: telemetry.ErrSessionClosed}
	err := ReplayPCAPFile(context.Background(), path, ReplayConfig{
		UDPPort: 9000,
		Stats:   stats,
		Handler: handler,
	})
	if err != nil {
		t.Fatalf("expected clean stop on closed session, got %v", err)
	}
	if stats.RejectedCount() != 1 {
		t.Errorf("expected 1 rejected fragment, got %d", stats.RejectedCount())
	}
}

func TestReplayPCAPFile_HandlerError(t *testing.T) {
	base := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	path := writeTestCapture(t, []capturedPacket{
		{payload: []byte{0x01}, dstPort: 9000, ts: base},
	})

	writeErr := errors.New("disk full")
	handler := &recordingHandler{err: writeErr}
	err := ReplayPCAPFile(context.Background(), path, ReplayConfig{UDPPort: 9000, Handler: handler})
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to handle fragment") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestReplayPCAPFile_MissingFile(t *testing.T) {
	err := ReplayPCAPFile(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"), ReplayConfig{
		Handler: &recordingHandler{},
	})
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to open PCAP file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReplayPCAPFile_RequiresHandler(t *testing.T) {
	err := ReplayPCAPFile(context.Background(), "capture.pcap", ReplayConfig{})
	if err == nil {
		t.Fatal("expected error for missing handler, got nil")
	}
	if !strings.Contains(err.Error(), "fragment handler") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestReplayPCAPFile_Realtime checks that realtime pacing honours the
// capture spacing. The capture spans 200ms at 4x speed, so replay should
// take roughly 50ms and certainly more than none.
func TestReplayPCAPFile_Realtime(t *testing.T) {
	base := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	path := writeTestCapture(t, []capturedPacket{
		{payload: []byte{0x01}, dstPort: 9000, ts: base},
		{payload: []byte{0x02}, dstPort: 9000, ts: base.Add(200 * time.Millisecond)},
	})

	handler := &recordingHandler{}
	start := time.Now()
	err := ReplayPCAPFile(context.Background(), path, ReplayConfig{
		UDPPort:         9000,
		Realtime:        true,
		SpeedMultiplier: 4.0,
		Handler:         handler,
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("ReplayPCAPFile returned error: %v", err)
	}
	if len(handler.Fragments()) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(handler.Fragments()))
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("expected replay to take at least 40ms at 4x speed, took %v", elapsed)
	}
}
