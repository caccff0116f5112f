package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/msgpipe/internal/testutil/testlog"
)

func mustEncode(t *testing.T, typ uint32, payload []byte) []byte {
	t.Helper()
	buf, err := Encode(typ, payload, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf
}

func TestParserReassemblesAnyChunking(t *testing.T) {
	testlog.Start(t)
	payload := []byte("partial frames are reassembled byte for byte")
	wire := mustEncode(t, 7, payload)

	for chunk := 1; chunk <= len(wire); chunk++ {
		p := NewParser(DefaultLimits())
		var got []Frame
		for off := 0; off < len(wire); off += chunk {
			end := min(off+chunk, len(wire))
			frames, err := p.Feed(wire[off:end])
			if err != nil {
				t.Fatalf("chunk=%d feed: %v", chunk, err)
			}
			got = append(got, frames...)
		}
		if len(got) != 1 {
			t.Fatalf("chunk=%d expected one frame, got %d", chunk, len(got))
		}
		if got[0].Type != 7 || !bytes.Equal(got[0].Payload, payload) {
			t.Fatalf("chunk=%d frame mismatch: %+v", chunk, got[0])
		}
		if p.Pending() {
			t.Fatalf("chunk=%d parser should be at rest", chunk)
		}
	}
}

func TestParserMultipleFramesInOneRead(t *testing.T) {
	testlog.Start(t)
	var wire []byte
	wire = append(wire, mustEncode(t, 1, nil)...)
	wire = append(wire, mustEncode(t, 2, []byte("a"))...)
	wire = append(wire, mustEncode(t, 3, []byte("bc"))...)
	// trailing partial descriptor
	wire = append(wire, 5, 0, 0)

	p := NewParser(DefaultLimits())
	frames, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, want := range []uint32{1, 2, 3} {
		if frames[i].Type != want {
			t.Fatalf("frame[%d] type=%d want=%d", i, frames[i].Type, want)
		}
	}
	if len(frames[0].Payload) != 0 {
		t.Fatalf("connect-style frame must be empty: %v", frames[0].Payload)
	}
	if !p.Pending() || p.Buffered() != 3 {
		t.Fatalf("expected 3 retained bytes, pending=%v buffered=%d", p.Pending(), p.Buffered())
	}

	frames, err = p.Feed([]byte{0, 9, 0, 0, 0, 'h', 'e', 'l', 'l', 'o'})
	if err != nil {
		t.Fatalf("feed tail: %v", err)
	}
	if len(frames) != 1 || frames[0].Type != 9 || string(frames[0].Payload) != "hello" {
		t.Fatalf("unexpected tail frames: %+v", frames)
	}
}

func TestParserStepNeedsMoreData(t *testing.T) {
	testlog.Start(t)
	p := NewParser(DefaultLimits())
	n, _, ok, err := p.Step([]byte{1, 2, 3, 4, 5, 6, 7})
	if err != nil || ok || n != 0 {
		t.Fatalf("expected zero progress, got n=%d ok=%v err=%v", n, ok, err)
	}
}

func TestParserStepZeroSizeCompletesImmediately(t *testing.T) {
	testlog.Start(t)
	p := NewParser(DefaultLimits())
	n, f, ok, err := p.Step(EncodeDescriptor(Descriptor{Size: 0, Type: 1}))
	if err != nil || !ok || n != DescriptorLen || f.Type != 1 {
		t.Fatalf("unexpected step n=%d ok=%v f=%+v err=%v", n, ok, f, err)
	}
}

func TestParserFeedDoesNotRetainCallerBuffer(t *testing.T) {
	testlog.Start(t)
	wire := mustEncode(t, 4, []byte("abcdef"))
	p := NewParser(DefaultLimits())
	buf := make([]byte, 5)
	copy(buf, wire[:5])
	if _, err := p.Feed(buf); err != nil {
		t.Fatalf("feed: %v", err)
	}
	for i := range buf {
		buf[i] = 0xFF
	}
	frames, err := p.Feed(wire[5:])
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 1 || string(frames[0].Payload) != "abcdef" {
		t.Fatalf("caller buffer reuse corrupted frame: %+v", frames)
	}
}

func TestParserFinishReportsTruncation(t *testing.T) {
	testlog.Start(t)
	wire := mustEncode(t, 2, []byte("truncated"))
	p := NewParser(DefaultLimits())
	if _, err := p.Feed(wire[:DescriptorLen+3]); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := p.Finish(); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}

	p.Reset()
	if err := p.Finish(); err != nil {
		t.Fatalf("reset parser should finish cleanly: %v", err)
	}
	if _, err := p.Feed(wire[:4]); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := p.Finish(); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame inside descriptor, got %v", err)
	}
}

func TestParserRejectsOversizedDescriptor(t *testing.T) {
	testlog.Start(t)
	p := NewParser(Limits{MaxPayloadBytes: 8})
	_, err := p.Feed(EncodeDescriptor(Descriptor{Size: 9, Type: 2}))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := p.Feed([]byte{0}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("parser error should be sticky, got %v", err)
	}
}

func FuzzParserChunking(f *testing.F) {
	f.Add([]byte("seed"), uint8(3))
	f.Fuzz(func(t *testing.T, payload []byte, chunk uint8) {
		step := int(chunk)%16 + 1
		wire, err := Encode(5, payload, DefaultLimits())
		if err != nil {
			t.Skip()
		}
		p := NewParser(DefaultLimits())
		var got []Frame
		for off := 0; off < len(wire); off += step {
			frames, err := p.Feed(wire[off:min(off+step, len(wire))])
			if err != nil {
				t.Fatalf("feed: %v", err)
			}
			got = append(got, frames...)
		}
		if len(got) != 1 || !bytes.Equal(got[0].Payload, payload) {
			t.Fatalf("reassembly mismatch")
		}
	})
}
