package core

import (
	"io"

	"tickhal/protocol"
)

// Session runs the command protocol over one byte stream: it decodes host
// frames, dispatches them through a registry and acknowledges each one.
//
// Responses produced while a frame is parsed are queued behind its ACK. Work
// that must not delay the ACK, such as a hibernate, is passed to Defer and
// runs once the ACK is out.
type Session struct {
	reg *CommandRegistry
	dec *protocol.Decoder
	w   io.Writer

	nextSeq  uint8 // expected from the host; also stamped on outgoing frames
	resyncs  uint32
	pending  []byte
	deferred func()
	payload  []byte
	ack      [protocol.MessageMin]byte

	onReset func()
}

// NewSession registers the bootstrap entries (identify_response as ID 0,
// identify as ID 1) in reg and binds it to w.
func NewSession(reg *CommandRegistry, w io.Writer) *Session {
	s := &Session{
		reg:     reg,
		dec:     protocol.NewDecoder(),
		w:       w,
		pending: make([]byte, 0, 2*protocol.MessageMax),
		payload: make([]byte, 0, protocol.MessagePayloadMax),
	}
	reg.RegisterResponse("identify_response", "offset=%u data=%*s")
	reg.Register("identify", "offset=%u count=%c", s.handleIdentify)
	reg.RegisterResponse("error", "code=%*s")
	return s
}

// Registry returns the command registry served by this session.
func (s *Session) Registry() *CommandRegistry { return s.reg }

// SetResetHandler is called when the host restarts its sequence numbering.
func (s *Session) SetResetHandler(fn func()) { s.onReset = fn }

// Defer queues fn to run after the current frame's ACK has been written.
func (s *Session) Defer(fn func()) { s.deferred = fn }

// Receive feeds bytes read from the link.
func (s *Session) Receive(p []byte) {
	s.dec.Write(p)
	for {
		f, ok := s.dec.Next()
		if r := s.dec.Resyncs(); r != s.resyncs {
			// NAK with the sequence we still expect.
			s.resyncs = r
			s.writeAck()
		}
		if !ok {
			return
		}
		if f.Seq == 0 && s.nextSeq != 0 {
			s.nextSeq = 0
			if s.onReset != nil {
				s.onReset()
			}
		}
		if f.Seq == s.nextSeq {
			s.nextSeq = (s.nextSeq + 1) & protocol.MessageSeqMask
			s.parse(f.Payload)
		}
		s.writeAck()
		s.flush()
		if fn := s.deferred; fn != nil {
			s.deferred = nil
			fn()
			s.flush()
		}
	}
}

func (s *Session) parse(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.sendError(Unknown)
		}
	}()
	for len(frame) > 0 {
		id, err := protocol.ReadUint(&frame)
		if err != nil {
			s.sendError(BadArgument)
			return
		}
		if err := s.reg.Dispatch(uint16(id), &frame); err != nil {
			DebugPrintln("[CMD] " + err.Error())
			s.sendError(CodeOf(err))
			return
		}
	}
}

// SendResponse queues the response registered under name. args appends the
// encoded arguments to its input.
func (s *Session) SendResponse(name string, args func(b []byte) []byte) {
	cmd, ok := s.reg.GetCommandByName(name)
	if !ok {
		panic("response not registered: " + name)
	}
	s.payload = protocol.AppendUint(s.payload[:0], uint32(cmd.ID))
	if args != nil {
		s.payload = args(s.payload)
	}
	out, err := protocol.AppendFrame(s.pending, s.nextSeq, s.payload)
	if err != nil {
		DebugPrintln("[CMD] " + name + ": " + err.Error())
		return
	}
	s.pending = out
}

func (s *Session) sendError(c Code) {
	s.SendResponse("error", func(b []byte) []byte {
		return protocol.AppendBytes(b, []byte(c))
	})
}

func (s *Session) writeAck() {
	ack, _ := protocol.AppendFrame(s.ack[:0], s.nextSeq, nil)
	s.w.Write(ack)
}

func (s *Session) flush() {
	if len(s.pending) == 0 {
		return
	}
	s.w.Write(s.pending)
	s.pending = s.pending[:0]
}

// identifyChunkMax keeps an identify_response inside one frame.
const identifyChunkMax = 40

// handleIdentify returns one chunk of the dictionary.
func (s *Session) handleIdentify(data *[]byte) error {
	offset, err := protocol.ReadUint(data)
	if err != nil {
		return opErr(BadArgument, "identify", err)
	}
	count, err := protocol.ReadUint(data)
	if err != nil {
		return opErr(BadArgument, "identify", err)
	}
	if count > identifyChunkMax {
		count = identifyChunkMax
	}
	chunk := s.reg.Chunk(offset, uint8(count))
	s.SendResponse("identify_response", func(b []byte) []byte {
		b = protocol.AppendUint(b, offset)
		return protocol.AppendBytes(b, chunk)
	})
	return nil
}
