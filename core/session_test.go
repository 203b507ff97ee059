package core

import (
	"bytes"
	"testing"

	"tickhal/protocol"
)

// hostFrame encodes a host message: a command ID followed by its
// unsigned arguments.
func hostFrame(t *testing.T, seq uint8, id uint16, args ...uint32) []byte {
	t.Helper()
	payload := protocol.AppendUint(nil, uint32(id))
	for _, a := range args {
		payload = protocol.AppendUint(payload, a)
	}
	f, err := protocol.AppendFrame(nil, seq, payload)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// readFrames splits device output into frames, copying the payloads.
func readFrames(t *testing.T, out *bytes.Buffer) []protocol.Frame {
	t.Helper()
	dec := protocol.NewDecoder()
	dec.Write(out.Bytes())
	out.Reset()
	var frames []protocol.Frame
	for {
		f, ok := dec.Next()
		if !ok {
			break
		}
		f.Payload = append([]byte(nil), f.Payload...)
		frames = append(frames, f)
	}
	if dec.Resyncs() != 0 {
		t.Fatal("device sent a corrupt frame")
	}
	return frames
}

type sessionRig struct {
	t   *testing.T
	b   *simBoard
	sys *System
	s   *Session
	out bytes.Buffer
	seq uint8
}

func newSessionRig(t *testing.T) *sessionRig {
	r := &sessionRig{t: t, b: newSimBoard(t)}
	r.sys = r.b.boot(DefaultConfig(), nil)
	r.s = NewSession(NewCommandRegistry(), &r.out)
	RegisterTimeCommands(r.s, r.sys)
	return r
}

func (r *sessionRig) id(name string) uint16 {
	cmd, ok := r.s.Registry().GetCommandByName(name)
	if !ok {
		r.t.Fatalf("%s not registered", name)
	}
	return cmd.ID
}

// call sends one command and returns the frames the device wrote back.
func (r *sessionRig) call(name string, args ...uint32) []protocol.Frame {
	r.s.Receive(hostFrame(r.t, r.seq, r.id(name), args...))
	r.seq = (r.seq + 1) & protocol.MessageSeqMask
	return readFrames(r.t, &r.out)
}

// response checks that frames are an ACK followed by one message named
// want, and returns that message's arguments.
func (r *sessionRig) response(frames []protocol.Frame, want string) []byte {
	r.t.Helper()
	if len(frames) != 2 {
		r.t.Fatalf("got %d frames, want ACK and %s", len(frames), want)
	}
	if len(frames[0].Payload) != 0 || frames[0].Seq != r.seq {
		r.t.Fatalf("first frame is not an ACK for seq %d: %+v", r.seq, frames[0])
	}
	p := frames[1].Payload
	id, err := protocol.ReadUint(&p)
	if err != nil || uint16(id) != r.id(want) {
		r.t.Fatalf("response id %d, want %s", id, want)
	}
	return p
}

func readUints(t *testing.T, p []byte, n int) []uint32 {
	t.Helper()
	vals := make([]uint32, n)
	for i := range vals {
		v, err := protocol.ReadUint(&p)
		if err != nil {
			t.Fatalf("argument %d: %v", i, err)
		}
		vals[i] = v
	}
	return vals
}

func TestRegistryDictionary(t *testing.T) {
	reg := NewCommandRegistry()
	NewSession(reg, &bytes.Buffer{})
	if reg.Count() != 3 {
		t.Fatalf("bootstrap registered %d entries", reg.Count())
	}
	if id := reg.Register("identify", "other=%u", nil); id != 1 {
		t.Errorf("re-registering identify returned %d", id)
	}
	want := "identify_response offset=%u data=%*s\nidentify offset=%u count=%c\nerror code=%*s\n"
	if got := string(reg.Dictionary()); got != want {
		t.Errorf("dictionary %q, want %q", got, want)
	}
	if got := string(reg.Chunk(9, 8)); got != "response" {
		t.Errorf("Chunk(9, 8) = %q", got)
	}
	if reg.Chunk(uint32(len(want)), 10) != nil {
		t.Error("chunk past the end is not empty")
	}
}

func TestSessionIdentify(t *testing.T) {
	r := newSessionRig(t)
	dict := r.s.Registry().Dictionary()

	var got []byte
	for {
		frames := r.call("identify", uint32(len(got)), 60)
		p := r.response(frames, "identify_response")
		off, _ := protocol.ReadUint(&p)
		chunk, err := protocol.ReadBytes(&p)
		if err != nil || off != uint32(len(got)) {
			t.Fatalf("chunk at %d: off=%d err=%v", len(got), off, err)
		}
		if len(chunk) > identifyChunkMax {
			t.Fatalf("chunk of %d bytes", len(chunk))
		}
		if len(chunk) == 0 {
			break
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, dict) {
		t.Errorf("reassembled dictionary differs")
	}
}

func TestSessionTimeCommands(t *testing.T) {
	r := newSessionRig(t)

	p := r.response(r.call("set_wallclock", epoch2023), "wallclock")
	if v := readUints(t, p, 1); v[0] != epoch2023 {
		t.Errorf("wallclock = %d", v[0])
	}

	r.b.advance(3000000)
	p = r.response(r.call("get_uptime"), "uptime")
	if v := readUints(t, p, 1); v[0] != 3 {
		t.Errorf("uptime = %d", v[0])
	}
	p = r.response(r.call("get_clock"), "clock")
	if v := readUints(t, p, 1); v[0] != 3000 {
		t.Errorf("clock = %d", v[0])
	}

	p = r.response(r.call("set_datetime", 2024, 2, 29, 12, 0, 0), "datetime")
	if v := readUints(t, p, 6); v[0] != 2024 || v[1] != 2 || v[2] != 29 || v[3] != 12 {
		t.Errorf("datetime = %v", v)
	}

	p = r.response(r.call("calibrate"), "calibration")
	if v := readUints(t, p, 3); v[0] != 500 || v[1] != 512 || v[2] != 0 {
		t.Errorf("calibration = %v", v)
	}
}

func TestSessionHibernateAfterAck(t *testing.T) {
	r := newSessionRig(t)
	if err := r.sys.Calibrator.Calibrate(); err != nil {
		t.Fatal(err)
	}
	start := r.b.nowUs

	frames := r.call("hibernate", 30, uint32(Deep), uint32(AllowInterrupts))
	p := r.response(frames, "hibernate_result")
	v := readUints(t, p, 4)
	if v[0] != 30000 || v[1] != 30000 || SleepMode(v[2]) != Deep || v[3] != 2 {
		t.Errorf("hibernate_result = %v", v)
	}
	if r.b.nowUs-start != 30000000 {
		t.Errorf("slept %d us", r.b.nowUs-start)
	}

	p = r.response(r.call("get_sleep_stats"), "sleep_stats")
	if v := readUints(t, p, 4); v[0] != 2 || v[1] != 1 {
		t.Errorf("sleep_stats = %v", v)
	}
}

func TestSessionErrors(t *testing.T) {
	r := newSessionRig(t)

	errorCode := func(frames []protocol.Frame) string {
		t.Helper()
		p := r.response(frames, "error")
		b, err := protocol.ReadBytes(&p)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}
	if c := errorCode(r.call("hibernate", 1, 7, 0)); c != "bad_argument" {
		t.Errorf("bad mode: %q", c)
	}
	if c := errorCode(r.call("set_datetime", 2023, 2, 29, 0, 0, 0)); c != "bad_argument" {
		t.Errorf("Feb 29 2023: %q", c)
	}
	ceiling := r.sys.Sleep.Ceiling()
	if c := errorCode(r.call("config_sleep", uint32(Light), 0xFFFFFFFF)); c != "bad_argument" {
		t.Errorf("huge interval: %q", c)
	}
	if r.sys.Sleep.Ceiling() != ceiling {
		t.Errorf("rejected config_sleep changed the ceiling to %v", r.sys.Sleep.Ceiling())
	}
	if c := errorCode(r.call("sleep_ms")); c != "bad_argument" {
		t.Errorf("missing argument: %q", c)
	}

	r.s.Receive(hostFrame(t, r.seq, 200))
	r.seq++
	if c := errorCode(readFrames(t, &r.out)); c != "bad_argument" {
		t.Errorf("unknown command: %q", c)
	}

	frames := r.call("config_sleep", uint32(Deep), 60)
	if len(frames) != 1 {
		t.Errorf("config_sleep sent %d frames, want a bare ACK", len(frames))
	}
	if r.sys.Sleep.Ceiling() != Deep || r.sys.Config().CalibrationIntervalMs != 60000 {
		t.Error("config_sleep not applied")
	}
}

func TestSessionNakAndReset(t *testing.T) {
	r := newSessionRig(t)
	resets := 0
	r.s.SetResetHandler(func() { resets++ })

	bad := hostFrame(t, 0, r.id("get_clock"))
	bad[len(bad)-2] ^= 0xFF
	r.s.Receive(bad)
	frames := readFrames(t, &r.out)
	if len(frames) != 1 || len(frames[0].Payload) != 0 || frames[0].Seq != 0 {
		t.Fatalf("corrupt frame answered with %+v, want a NAK for seq 0", frames)
	}

	// A retransmission of an already accepted frame is only acknowledged.
	r.call("get_clock")
	r.call("get_clock")
	r.s.Receive(hostFrame(t, 1, r.id("get_clock")))
	if frames := readFrames(t, &r.out); len(frames) != 1 || frames[0].Seq != 2 {
		t.Errorf("duplicate frame produced %+v, want one ACK for seq 2", frames)
	}
	if resets != 0 {
		t.Fatal("reset handler ran for a duplicate")
	}

	r.seq = 0
	r.response(r.call("get_clock"), "clock")
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}
