package frame

import "fmt"

// payloadPrealloc caps the up-front payload allocation so a hostile descriptor
// cannot force a large allocation before the bytes actually arrive.
const payloadPrealloc = 64 * 1024

// Parser reassembles frames from arbitrarily split reads of one stream.
//
// At rest the retained tail never holds more than a partial descriptor: payload
// bytes are moved into the in-progress frame as soon as they are seen.
type Parser struct {
	limits Limits

	tail []byte

	descPending bool
	desc        Descriptor
	payload     []byte

	err error
}

func NewParser(limits Limits) *Parser {
	return &Parser{
		limits:      limits.withDefaults(),
		descPending: true,
	}
}

// Step runs one parse step over buf and reports how many bytes it consumed.
// A zero count with complete=false means more input is needed; the caller
// keeps buf[consumed:] and retries once more bytes arrive.
func (p *Parser) Step(buf []byte) (consumed int, f Frame, complete bool, err error) {
	if p.err != nil {
		return 0, Frame{}, false, p.err
	}
	if p.descPending {
		if len(buf) < DescriptorLen {
			return 0, Frame{}, false, nil
		}
		d, err := DecodeDescriptor(buf[:DescriptorLen])
		if err != nil {
			p.err = err
			return 0, Frame{}, false, err
		}
		if d.Size > p.limits.MaxPayloadBytes {
			p.err = fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, d.Size)
			return 0, Frame{}, false, p.err
		}
		p.desc = d
		p.descPending = false
		p.payload = make([]byte, 0, min(int(d.Size), payloadPrealloc))
		consumed = DescriptorLen
	}

	need := int(p.desc.Size) - len(p.payload)
	n := min(need, len(buf)-consumed)
	p.payload = append(p.payload, buf[consumed:consumed+n]...)
	consumed += n

	if len(p.payload) == int(p.desc.Size) {
		f = Frame{Type: p.desc.Type, Payload: p.payload}
		p.resetFrame()
		return consumed, f, true, nil
	}
	return consumed, Frame{}, false, nil
}

// Feed appends chunk to the retained tail and returns every frame it completes.
// chunk is never retained, so callers may reuse their read buffer.
func (p *Parser) Feed(chunk []byte) ([]Frame, error) {
	buf := chunk
	if len(p.tail) > 0 {
		p.tail = append(p.tail, chunk...)
		buf = p.tail
	}

	var out []Frame
	for {
		n, f, ok, err := p.Step(buf)
		if err != nil {
			p.tail = nil
			return out, err
		}
		buf = buf[n:]
		if ok {
			out = append(out, f)
			continue
		}
		if n == 0 {
			break
		}
	}

	if len(buf) == 0 {
		p.tail = nil
	} else {
		p.tail = append([]byte(nil), buf...)
	}
	return out, nil
}

// Pending reports whether a partially received frame is buffered.
func (p *Parser) Pending() bool {
	return !p.descPending || len(p.tail) > 0
}

// Buffered returns the number of bytes held for the in-progress frame.
func (p *Parser) Buffered() int {
	return len(p.tail) + len(p.payload)
}

// Finish reports ErrTruncatedFrame when the stream ended mid-frame.
func (p *Parser) Finish() error {
	if p.err != nil {
		return p.err
	}
	if !p.Pending() {
		return nil
	}
	if p.descPending {
		return fmt.Errorf("%w: %d of %d descriptor bytes", ErrTruncatedFrame, len(p.tail), DescriptorLen)
	}
	return fmt.Errorf("%w: %d of %d payload bytes type=%d", ErrTruncatedFrame, len(p.payload), p.desc.Size, p.desc.Type)
}

// Reset drops all partial state, including a sticky error.
func (p *Parser) Reset() {
	p.tail = nil
	p.err = nil
	p.resetFrame()
}

func (p *Parser) resetFrame() {
	p.descPending = true
	p.desc = Descriptor{}
	p.payload = nil
}
