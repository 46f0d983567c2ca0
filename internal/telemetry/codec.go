package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
)

/*
NPG-Lite Record Format

The acquisition firmware packs every conversion result into a fixed
7-byte record and fills each transport payload with consecutive whole
records:

	├── Counter (1 byte)   - rolling frame counter, increments per record, wraps 255 → 0
	└── Channels (6 bytes) - 3 × uint16 big-endian raw ADC readings, channel 0 first

The counter is the only sequencing information on the wire; there is no
preamble, length field, or checksum. Alignment is therefore positional:
the reassembly buffer carves the byte stream into 7-byte slices and the
codec decodes exactly one record at a time.
*/

// ErrInvalidRecordLength reports a decode attempt on a slice that is not
// exactly one record long.
var ErrInvalidRecordLength = errors.New("telemetry: invalid record length")

// DecodeSample parses a single wire record. The input must be exactly
// RecordSize bytes; the reassembly buffer guarantees this for records it
// produces.
func DecodeSample(record []byte) (Sample, error) {
	if len(record) != RecordSize {
		return Sample{}, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidRecordLength, RecordSize, len(record))
	}

	s := Sample{Counter: record[0]}
	for i := 0; i < NumChannels; i++ {
		off := 1 + i*2
		s.Channels[i] = binary.BigEndian.Uint16(record[off : off+2])
	}
	return s, nil
}

// AppendSample appends the wire encoding of s to dst and returns the
// extended slice.
func AppendSample(dst []byte, s Sample) []byte {
	dst = append(dst, s.Counter)
	for i := 0; i < NumChannels; i++ {
		dst = binary.BigEndian.AppendUint16(dst, s.Channels[i])
	}
	return dst
}

// EncodeSample returns the 7-byte wire encoding of s.
func EncodeSample(s Sample) []byte {
	return AppendSample(make([]byte, 0, RecordSize), s)
}
