package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// ReplayConfig controls PCAP replay.
type ReplayConfig struct {
	// UDPPort filters on destination port. Zero accepts every UDP packet
	// in the capture.
	UDPPort int

	// Realtime paces delivery by the capture timestamps instead of
	// replaying as fast as the file can be read.
	Realtime bool

	// SpeedMultiplier scales realtime pacing. 2.0 replays at double
	// speed. Values <= 0 are treated as 1.0. Ignored unless Realtime.
	SpeedMultiplier float64

	Stats   PacketStatsInterface
	Handler FragmentHandler
}

// ReplayPCAPFile replays captured bridge traffic from a PCAP file,
// delivering each UDP payload to the handler as one fragment. Fragments
// are stamped with their capture timestamps, so a recording replayed
// through a session reproduces the original sample timing.
func ReplayPCAPFile(ctx context.Context, pcapFile string, cfg ReplayConfig) error {
	if cfg.Handler == nil {
		return errors.New("PCAP replay requires a fragment handler")
	}

	stats := cfg.Stats
	if stats == nil {
		stats = &noopStats{}
	}

	speed := cfg.SpeedMultiplier
	if speed <= 0 {
		speed = 1.0
	}

	f, err := os.Open(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read PCAP header: %w", err)
	}

	log.Printf("PCAP replay started: file=%s port=%d realtime=%v speed=%.1fx",
		pcapFile, cfg.UDPPort, cfg.Realtime, speed)

	packetSource := gopacket.NewPacketSource(r, r.LinkType())
	fragmentCount := 0
	startTime := time.Now()
	var lastCapture time.Time

	for {
		select {
		case <-ctx.Done():
			log.Printf("PCAP replay stopping due to context cancellation (delivered %d fragments)", fragmentCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				// End of PCAP file
				elapsed := time.Since(startTime)
				log.Printf("PCAP replay complete: %d fragments delivered in %v", fragmentCount, elapsed)
				return nil
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}

			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}

			if cfg.UDPPort != 0 && int(udp.DstPort) != cfg.UDPPort {
				continue
			}

			payload := udp.Payload
			if len(payload) == 0 {
				continue
			}

			capturedAt := packet.Metadata().Timestamp

			if cfg.Realtime {
				if !lastCapture.IsZero() && capturedAt.After(lastCapture) {
					delay := time.Duration(float64(capturedAt.Sub(lastCapture)) / speed)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
					}
				}
				lastCapture = capturedAt
			}

			stats.AddFragment(len(payload))
			fragmentCount++

			if err := cfg.Handler.HandleFragment(payload, capturedAt); err != nil {
				if errors.Is(err, telemetry.ErrSessionClosed) {
					stats.AddRejected()
					log.Printf("PCAP replay stopping: session no longer accepts fragments (delivered %d)", fragmentCount)
					return nil
				}
				return fmt.Errorf("failed to handle fragment %d from capture: %w", fragmentCount, err)
			}

			if fragmentCount%1000 == 0 {
				elapsed := time.Since(startTime)
				log.Printf("PCAP progress: %d fragments delivered in %v (%.0f frag/s)",
					fragmentCount, elapsed, float64(fragmentCount)/elapsed.Seconds())
			}
		}
	}
}
