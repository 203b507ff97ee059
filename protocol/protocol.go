// Package protocol is the wire codec shared by the firmware and the host
// tool: VLQ-encoded integers and byte strings inside length-prefixed,
// CRC16-checked frames terminated by a sync byte.
package protocol

import "errors"

// Frame layout: len, seq, payload..., crc_hi, crc_lo, sync.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageMin         = MessageHeaderSize + MessageTrailerSize
	MessageMax         = 64
	MessagePayloadMax  = MessageMax - MessageMin

	MessageSync    = 0x7E
	MessageDest    = 0x10
	MessageSeqMask = 0x0F
)

var (
	ErrShortBuffer   = errors.New("protocol: short buffer")
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)
