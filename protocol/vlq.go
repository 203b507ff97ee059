package protocol

// AppendInt appends v as a VLQ. Values in [-32, 96) take one byte; each
// further byte carries seven more bits, most significant first.
func AppendInt(dst []byte, v int32) []byte {
	shift := 0
	for lo, hi := int32(-1<<5), int32(3<<5); shift < 28; shift += 7 {
		if v >= lo && v < hi {
			break
		}
		lo, hi = lo<<7, hi<<7
	}
	for ; shift > 0; shift -= 7 {
		dst = append(dst, byte(v>>shift)&0x7F|0x80)
	}
	return append(dst, byte(v)&0x7F)
}

// AppendUint appends v as a VLQ. The encoding is shared with AppendInt.
func AppendUint(dst []byte, v uint32) []byte {
	return AppendInt(dst, int32(v))
}

// AppendBytes appends a length-prefixed byte string.
func AppendBytes(dst, b []byte) []byte {
	dst = AppendUint(dst, uint32(len(b)))
	return append(dst, b...)
}

// ReadInt decodes a VLQ from the front of *data and advances it.
func ReadInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrShortBuffer
	}
	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrShortBuffer
		}
		c = uint32(buf[i])
		i++
		v = v<<7 | c&0x7F
	}
	*data = buf[i:]
	return int32(v), nil
}

// ReadUint decodes an unsigned VLQ.
func ReadUint(data *[]byte) (uint32, error) {
	v, err := ReadInt(data)
	return uint32(v), err
}

// ReadBytes decodes a length-prefixed byte string. The result aliases data.
func ReadBytes(data *[]byte) ([]byte, error) {
	buf := *data
	n, err := ReadUint(&buf)
	if err != nil {
		return nil, err
	}
	if uint32(len(buf)) < n {
		return nil, ErrShortBuffer
	}
	*data = buf[n:]
	return buf[:n], nil
}
