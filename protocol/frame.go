package protocol

import "bytes"

// AppendFrame wraps payload in a frame carrying sequence seq.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MessagePayloadMax {
		return dst, ErrFrameTooLarge
	}
	start := len(dst)
	dst = append(dst, byte(len(payload)+MessageMin), MessageDest|seq&MessageSeqMask)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), MessageSync), nil
}

// Frame is one validated message.
type Frame struct {
	Seq     uint8 // low four bits
	Payload []byte
}

// Decoder splits a byte stream into frames. On a bad length, destination
// bits, trailer or CRC it drops input up to the next sync byte.
type Decoder struct {
	buf     []byte
	off     int
	synced  bool
	resyncs uint32
}

// maxBuffered bounds the input kept while waiting for a frame to complete.
const maxBuffered = 4 * MessageMax

// NewDecoder returns a decoder that assumes it starts on a frame boundary.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, maxBuffered), synced: true}
}

// Write queues p for decoding. Payloads returned by Next are only valid
// until the following Write.
func (d *Decoder) Write(p []byte) (int, error) {
	if d.off > 0 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
	if over := len(d.buf) - maxBuffered; over > 0 {
		d.off = over
		d.synced = false
	}
	return len(p), nil
}

// Next returns the next complete frame, or false when more input is needed.
func (d *Decoder) Next() (Frame, bool) {
	for d.off < len(d.buf) {
		data := d.buf[d.off:]
		if !d.synced {
			i := bytes.IndexByte(data, MessageSync)
			if i < 0 {
				d.off = len(d.buf)
				break
			}
			d.off += i + 1
			d.synced = true
			d.resyncs++
			continue
		}
		if data[0] == MessageSync {
			d.off++
			continue
		}
		if len(data) < MessageMin {
			break
		}
		n := int(data[0])
		if n < MessageMin || n > MessageMax || data[1]&^MessageSeqMask != MessageDest {
			d.synced = false
			continue
		}
		if len(data) < n {
			break
		}
		crc := uint16(data[n-3])<<8 | uint16(data[n-2])
		if data[n-1] != MessageSync || crc != CRC16(data[:n-MessageTrailerSize]) {
			d.synced = false
			continue
		}
		d.off += n
		return Frame{Seq: data[1] & MessageSeqMask, Payload: data[MessageHeaderSize : n-MessageTrailerSize]}, true
	}
	return Frame{}, false
}

// Resyncs counts how often the stream was recovered from corrupt input.
func (d *Decoder) Resyncs() uint32 { return d.resyncs }

// Reset discards buffered input.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
	d.synced = true
}
