package link

import (
	"bytes"
	"fmt"
	"strings"

	"tickhal/protocol"
)

// Param is one "name=%fmt" field of a message.
type Param struct {
	Name   string
	Format string // %u, %i, %c, %hu or %*s
}

func (p Param) isBytes() bool { return p.Format == "%*s" }

// Message is one dictionary entry.
type Message struct {
	ID     uint16
	Name   string
	Params []Param
}

// Dictionary maps message names to wire IDs. Line n of the device's text
// dictionary describes ID n.
type Dictionary struct {
	byID   []*Message
	byName map[string]*Message
}

// bootstrap is what the host knows before the first identify.
const bootstrap = "identify_response offset=%u data=%*s\nidentify offset=%u count=%c\n"

// ParseDictionary parses the "name k=%fmt ..." lines sent through identify.
func ParseDictionary(text []byte) (*Dictionary, error) {
	d := &Dictionary{byName: make(map[string]*Message)}
	for i, line := range bytes.Split(bytes.TrimRight(text, "\n"), []byte("\n")) {
		fields := strings.Fields(string(line))
		if len(fields) == 0 {
			return nil, fmt.Errorf("dictionary line %d: empty", i)
		}
		m := &Message{ID: uint16(i), Name: fields[0]}
		for _, f := range fields[1:] {
			name, format, ok := strings.Cut(f, "=")
			if !ok || !strings.HasPrefix(format, "%") {
				return nil, fmt.Errorf("dictionary line %d: bad parameter %q", i, f)
			}
			m.Params = append(m.Params, Param{Name: name, Format: format})
		}
		if _, dup := d.byName[m.Name]; dup {
			return nil, fmt.Errorf("dictionary line %d: duplicate %q", i, m.Name)
		}
		d.byID = append(d.byID, m)
		d.byName[m.Name] = m
	}
	return d, nil
}

// Lookup finds a message by name.
func (d *Dictionary) Lookup(name string) (*Message, bool) {
	m, ok := d.byName[name]
	return m, ok
}

// Messages returns every entry in ID order.
func (d *Dictionary) Messages() []*Message { return d.byID }

// Encode appends the message ID and args, in parameter order. Integer
// parameters take any Go integer; %*s takes []byte or string.
func (m *Message) Encode(dst []byte, args ...any) ([]byte, error) {
	if len(args) != len(m.Params) {
		return dst, fmt.Errorf("%s: %d arguments, want %d", m.Name, len(args), len(m.Params))
	}
	dst = protocol.AppendUint(dst, uint32(m.ID))
	for i, p := range m.Params {
		if p.isBytes() {
			switch v := args[i].(type) {
			case []byte:
				dst = protocol.AppendBytes(dst, v)
			case string:
				dst = protocol.AppendBytes(dst, []byte(v))
			default:
				return dst, fmt.Errorf("%s: %s wants bytes, got %T", m.Name, p.Name, v)
			}
			continue
		}
		v, err := toUint32(args[i])
		if err != nil {
			return dst, fmt.Errorf("%s: %s: %w", m.Name, p.Name, err)
		}
		dst = protocol.AppendUint(dst, v)
	}
	return dst, nil
}

func toUint32(a any) (uint32, error) {
	switch v := a.(type) {
	case uint32:
		return v, nil
	case uint8:
		return uint32(v), nil
	case uint16:
		return uint32(v), nil
	case uint:
		return uint32(v), nil
	case uint64:
		return uint32(v), nil
	case int:
		return uint32(v), nil
	case int32:
		return uint32(v), nil
	case int64:
		return uint32(v), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", a)
	}
}

// Response is a decoded device message.
type Response struct {
	Name  string
	msg   *Message
	vals  map[string]uint32
	bytes map[string][]byte
}

// Uint returns an integer field.
func (r *Response) Uint(name string) uint32 { return r.vals[name] }

// Int returns a signed integer field.
func (r *Response) Int(name string) int32 { return int32(r.vals[name]) }

// Bytes returns a %*s field.
func (r *Response) Bytes(name string) []byte { return r.bytes[name] }

// String formats the response as "name k=v ...".
func (r *Response) String() string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	for _, p := range r.msg.Params {
		if p.isBytes() {
			fmt.Fprintf(&sb, " %s=%q", p.Name, r.bytes[p.Name])
		} else {
			fmt.Fprintf(&sb, " %s=%d", p.Name, r.vals[p.Name])
		}
	}
	return sb.String()
}

// Decode parses one message from the front of *payload.
func (d *Dictionary) Decode(payload *[]byte) (*Response, error) {
	id, err := protocol.ReadUint(payload)
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if int(id) >= len(d.byID) {
		return nil, fmt.Errorf("unknown message id %d", id)
	}
	m := d.byID[id]
	r := &Response{Name: m.Name, msg: m, vals: make(map[string]uint32)}
	for _, p := range m.Params {
		if p.isBytes() {
			b, err := protocol.ReadBytes(payload)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.Name, p.Name, err)
			}
			if r.bytes == nil {
				r.bytes = make(map[string][]byte)
			}
			r.bytes[p.Name] = append([]byte(nil), b...)
			continue
		}
		v, err := protocol.ReadUint(payload)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Name, p.Name, err)
		}
		r.vals[p.Name] = v
	}
	return r, nil
}
