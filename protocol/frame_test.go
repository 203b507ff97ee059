package protocol

import (
	"bytes"
	"testing"
)

func TestCRC16(t *testing.T) {
	if got := CRC16(nil); got != 0xFFFF {
		t.Errorf("CRC16(empty) = %04X, want FFFF", got)
	}
	a := CRC16([]byte{0x01, 0x02, 0x03})
	b := CRC16([]byte{0x01, 0x02, 0x04})
	if a == b {
		t.Errorf("CRC16 collision: both inputs produced %04X", a)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := AppendUint(AppendUint(nil, 4), 3600)
	frame, err := AppendFrame(nil, 3, payload)
	if err != nil {
		t.Fatal(err)
	}
	if int(frame[0]) != len(frame) {
		t.Errorf("length byte %d, frame is %d bytes", frame[0], len(frame))
	}
	if frame[1] != MessageDest|3 || frame[len(frame)-1] != MessageSync {
		t.Errorf("bad header/trailer: %x", frame)
	}

	d := NewDecoder()
	d.Write(frame)
	f, ok := d.Next()
	if !ok {
		t.Fatal("no frame decoded")
	}
	if f.Seq != 3 || !bytes.Equal(f.Payload, payload) {
		t.Errorf("got seq %d payload %v", f.Seq, f.Payload)
	}
	if _, ok := d.Next(); ok {
		t.Error("unexpected second frame")
	}
}

func TestFrameTooLarge(t *testing.T) {
	if _, err := AppendFrame(nil, 0, make([]byte, MessagePayloadMax+1)); err != ErrFrameTooLarge {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
	if _, err := AppendFrame(nil, 0, make([]byte, MessagePayloadMax)); err != nil {
		t.Errorf("max payload rejected: %v", err)
	}
}

func TestDecoderPartialInput(t *testing.T) {
	frame, _ := AppendFrame(nil, 1, []byte{0x05, 0x06})
	d := NewDecoder()
	for i := range frame[:len(frame)-1] {
		d.Write(frame[i : i+1])
		if _, ok := d.Next(); ok {
			t.Fatalf("frame returned after %d bytes", i+1)
		}
	}
	d.Write(frame[len(frame)-1:])
	if f, ok := d.Next(); !ok || f.Seq != 1 {
		t.Errorf("frame not decoded after final byte")
	}
}

func TestDecoderResync(t *testing.T) {
	good1, _ := AppendFrame(nil, 1, []byte{0x01})
	bad, _ := AppendFrame(nil, 2, []byte{0x02})
	bad[2] ^= 0xFF // corrupt payload, CRC no longer matches
	good2, _ := AppendFrame(nil, 3, []byte{0x03})

	var stream []byte
	stream = append(stream, good1...)
	stream = append(stream, 0x42, 0x00) // line noise
	stream = append(stream, MessageSync)
	stream = append(stream, bad...)
	stream = append(stream, good2...)

	d := NewDecoder()
	d.Write(stream)

	var seqs []uint8
	for {
		f, ok := d.Next()
		if !ok {
			break
		}
		seqs = append(seqs, f.Seq)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 3 {
		t.Errorf("decoded seqs %v, want [1 3]", seqs)
	}
	if d.Resyncs() < 2 {
		t.Errorf("resyncs = %d, want at least 2", d.Resyncs())
	}
}

func TestDecoderOverflow(t *testing.T) {
	d := NewDecoder()
	d.Write(bytes.Repeat([]byte{0x20}, maxBuffered+10))
	if _, ok := d.Next(); ok {
		t.Fatal("garbage decoded as frame")
	}
	frame, _ := AppendFrame(nil, 0, []byte{0x09})
	d.Write(append([]byte{MessageSync}, frame...))
	if f, ok := d.Next(); !ok || f.Payload[0] != 0x09 {
		t.Errorf("decoder did not recover after overflow")
	}
}
