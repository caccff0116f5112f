package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// DescriptorLen is the fixed size of the wire descriptor: size(u32) + type(u32).
const DescriptorLen = 8

var (
	ErrShortDescriptor = errors.New("frame: short descriptor")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrTruncatedFrame  = errors.New("frame: stream ended mid-frame")
	ErrInvalidDescLen  = errors.New("frame: invalid descriptor length")
)

// Descriptor precedes every payload on the wire. Size is the payload byte length.
type Descriptor struct {
	Size uint32
	Type uint32
}

// Frame is one complete wire message.
type Frame struct {
	Type    uint32
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxPayloadBytes == 0 {
		l.MaxPayloadBytes = math.MaxUint32
	}
	return l
}

func EncodeDescriptor(d Descriptor) []byte {
	buf := make([]byte, DescriptorLen)
	putDescriptor(buf, d)
	return buf
}

func DecodeDescriptor(b []byte) (Descriptor, error) {
	if len(b) != DescriptorLen {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrInvalidDescLen, len(b))
	}
	return Descriptor{
		Size: binary.LittleEndian.Uint32(b[0:4]),
		Type: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

func putDescriptor(b []byte, d Descriptor) {
	binary.LittleEndian.PutUint32(b[0:4], d.Size)
	binary.LittleEndian.PutUint32(b[4:8], d.Type)
}

// Encode renders one frame as a contiguous buffer: descriptor then payload.
func Encode(msgType uint32, payload []byte, limits Limits) ([]byte, error) {
	limits = limits.withDefaults()
	if uint64(len(payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, DescriptorLen+len(payload))
	putDescriptor(buf, Descriptor{Size: uint32(len(payload)), Type: msgType})
	copy(buf[DescriptorLen:], payload)
	return buf, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	buf, err := Encode(f.Type, f.Payload, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame blocks until one full frame has been read from r.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	limits = limits.withDefaults()
	var fixed [DescriptorLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortDescriptor
		}
		return Frame{}, err
	}
	d, err := DecodeDescriptor(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if d.Size > limits.MaxPayloadBytes {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, d.Size)
	}
	payload := make([]byte, d.Size)
	if d.Size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, ErrTruncatedFrame
			}
			return Frame{}, err
		}
	}
	return Frame{Type: d.Type, Payload: payload}, nil
}
