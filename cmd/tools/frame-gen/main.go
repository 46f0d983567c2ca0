// Command frame-gen produces synthetic NPG-Lite notification streams
// for bench and integration testing. It emits the firmware's 7-byte
// records (counter plus three big-endian channel words) either to a
// file or over UDP to a running gateway, with optional counter drops
// and split deliveries to exercise gap detection and reassembly.
//
// Usage:
//
//	frame-gen -udp 127.0.0.1:9000 -n 2500 -drop 0.01
//	frame-gen -o stream.bin -n 10000 -split 0.2
package main

import (
	"flag"
	"log"
	"math"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

var (
	udpAddr   = flag.String("udp", "", "Send notifications to this UDP address (e.g. a running -udp-listen gateway)")
	outPath   = flag.String("o", "", "Write the raw byte stream to this file instead of UDP")
	samples   = flag.Int("n", 2500, "Number of samples to generate")
	rateHz    = flag.Float64("rate", telemetry.DefaultSampleRate, "Sample rate in Hz")
	batchSize = flag.Int("batch", telemetry.DefaultBatchSize, "Records per notification")
	dropRate  = flag.Float64("drop", 0, "Probability of a counter gap before a sample")
	splitRate = flag.Float64("split", 0, "Probability of splitting a notification across two deliveries")
	seed      = flag.Int64("seed", 0, "Random seed (0 = time-based)")
	pace      = flag.Bool("pace", true, "Pace deliveries at the sample rate (UDP only)")
)

func main() {
	flag.Parse()

	if *udpAddr == "" && *outPath == "" {
		log.Fatal("Error: either -udp or -o is required")
	}
	if *batchSize < 1 {
		log.Fatalf("invalid batch size %d", *batchSize)
	}
	if *rateHz <= 0 {
		log.Fatalf("invalid sample rate %f", *rateHz)
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s))

	var deliver func([]byte) error
	if *udpAddr != "" {
		conn, err := net.Dial("udp", *udpAddr)
		if err != nil {
			log.Fatalf("Failed to dial %s: %v", *udpAddr, err)
		}
		defer conn.Close()
		deliver = func(p []byte) error {
			_, err := conn.Write(p)
			return err
		}
		log.Printf("Sending %d samples to %s", *samples, *udpAddr)
	} else {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *outPath, err)
		}
		defer f.Close()
		deliver = func(p []byte) error {
			_, err := f.Write(p)
			return err
		}
	}

	interval := time.Duration(float64(*batchSize)) * telemetry.SampleInterval(*rateHz)

	var counter uint8
	var phase float64
	emitted, dropped, splits := 0, 0, 0
	notification := make([]byte, 0, *batchSize*telemetry.RecordSize)

	for emitted < *samples {
		notification = notification[:0]
		for i := 0; i < *batchSize && emitted < *samples; i++ {
			if *dropRate > 0 && rng.Float64() < *dropRate {
				// the device counted a sample the host never sees
				counter++
				dropped++
			}
			rec := telemetry.Sample{Counter: counter}
			for ch := 0; ch < telemetry.NumChannels; ch++ {
				// mid-rail sine sweep, one phase step per sample
				v := 2048 + 512*math.Sin(phase+float64(ch))
				rec.Channels[ch] = uint16(v)
			}
			notification = telemetry.AppendSample(notification, rec)
			counter++
			phase += 0.05
			emitted++
		}

		// a split lands mid-record so the receiver has to reassemble
		if *splitRate > 0 && len(notification) > 1 && rng.Float64() < *splitRate {
			cut := 1 + rng.Intn(len(notification)-1)
			if err := deliver(notification[:cut]); err != nil {
				log.Fatalf("Failed to deliver: %v", err)
			}
			if err := deliver(notification[cut:]); err != nil {
				log.Fatalf("Failed to deliver: %v", err)
			}
			splits++
		} else {
			if err := deliver(notification); err != nil {
				log.Fatalf("Failed to deliver: %v", err)
			}
		}

		if *pace && *udpAddr != "" {
			time.Sleep(interval)
		}
		if emitted%1000 < *batchSize && emitted >= 1000 {
			log.Printf("%d/%d samples", emitted, *samples)
		}
	}

	log.Printf("✓ Generated %d samples (%d gaps, %d split deliveries, seed %d)", emitted, dropped, splits, s)
}
