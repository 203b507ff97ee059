// Package link is the host side of the device protocol: it retrieves the
// command dictionary, encodes commands, waits for acknowledgements and
// decodes responses.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedisct1/dlog"

	"tickhal/host/serial"
	"tickhal/protocol"
)

// DeviceError is an "error code=..." response.
type DeviceError struct {
	Command string
	Code    string
}

func (e *DeviceError) Error() string { return e.Command + ": device error: " + e.Code }

// ErrClosed is returned once the port is gone.
var ErrClosed = errors.New("link: closed")

const (
	identifyChunk = 40
	retransmits   = 3
)

// Client talks to one device. Commands are serialised: one is in flight at
// a time.
type Client struct {
	port serial.Port

	// ErrorGrace is how long Send waits after an ACK for an error response.
	ErrorGrace time.Duration
	// AckTimeout bounds each wait for an ACK.
	AckTimeout time.Duration

	mu   sync.Mutex
	dict *Dictionary
	seq  uint8

	acks chan uint8
	resp chan []byte

	stop    chan struct{}
	dead    chan struct{}
	readErr error
	once    sync.Once
}

// New starts reading from port. Call Identify before sending anything other
// than identify.
func New(port serial.Port) *Client {
	dict, _ := ParseDictionary([]byte(bootstrap))
	c := &Client{
		port:       port,
		ErrorGrace: 50 * time.Millisecond,
		AckTimeout: 2 * time.Second,
		dict:       dict,
		acks:       make(chan uint8, 4),
		resp:       make(chan []byte, 16),
		stop:       make(chan struct{}),
		dead:       make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dictionary returns the dictionary in use.
func (c *Client) Dictionary() *Dictionary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dict
}

// Close stops the reader and closes the port.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		err = c.port.Close()
		<-c.dead
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.dead)
	dec := protocol.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			dec.Write(buf[:n])
			for {
				f, ok := dec.Next()
				if !ok {
					break
				}
				c.dispatch(f)
			}
		}
		select {
		case <-c.stop:
			c.readErr = ErrClosed
			return
		default:
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			// tarm/serial reports a read timeout as EOF.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		c.readErr = fmt.Errorf("link read: %w", err)
		return
	}
}

func (c *Client) dispatch(f protocol.Frame) {
	if len(f.Payload) == 0 {
		offer(c.acks, f.Seq)
		return
	}
	offer(c.resp, append([]byte(nil), f.Payload...))
}

// offer delivers v, dropping the oldest queued value when ch is full.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (c *Client) deadErr() error {
	if c.readErr != nil {
		return c.readErr
	}
	return ErrClosed
}

// transmit sends one frame and waits for the device to acknowledge it.
// Caller holds mu.
func (c *Client) transmit(ctx context.Context, payload []byte) error {
	frame, err := protocol.AppendFrame(nil, c.seq, payload)
	if err != nil {
		return err
	}
	want := (c.seq + 1) & protocol.MessageSeqMask
	drain(c.acks)

	for attempt := 0; attempt <= retransmits; attempt++ {
		if _, err := c.port.Write(frame); err != nil {
			return fmt.Errorf("link write: %w", err)
		}
		timer := time.NewTimer(c.AckTimeout)
	wait:
		for {
			select {
			case s := <-c.acks:
				if s == want {
					timer.Stop()
					c.seq = want
					return nil
				}
				if s == c.seq {
					// NAK: the device is still waiting for this frame.
					timer.Stop()
					break wait
				}
				dlog.Debugf("link: ignoring ack seq %d, want %d", s, want)
			case <-timer.C:
				break wait
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-c.dead:
				timer.Stop()
				return c.deadErr()
			}
		}
		dlog.Debugf("link: retransmitting seq %d (attempt %d)", c.seq, attempt+1)
	}
	return fmt.Errorf("link: no ack for seq %d", c.seq)
}

func (c *Client) encode(name string, args []any) ([]byte, error) {
	m, ok := c.dict.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	return m.Encode(nil, args...)
}

// await returns the next response named want. An error response fails the
// call; anything else is logged and skipped.
func (c *Client) await(ctx context.Context, cmd, want string) (*Response, error) {
	for {
		select {
		case p := <-c.resp:
			r, err := c.dict.Decode(&p)
			if err != nil {
				dlog.Warnf("link: undecodable response: %v", err)
				continue
			}
			switch r.Name {
			case want:
				return r, nil
			case "error":
				return nil, &DeviceError{Command: cmd, Code: string(r.Bytes("code"))}
			}
			dlog.Debugf("link: skipping %s while waiting for %s", r, want)
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: waiting for %s: %w", cmd, want, ctx.Err())
		case <-c.dead:
			return nil, c.deadErr()
		}
	}
}

// Call sends cmd and waits for the response named resp.
func (c *Client) Call(ctx context.Context, cmd, resp string, args ...any) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := c.encode(cmd, args)
	if err != nil {
		return nil, err
	}
	drain(c.resp)
	if err := c.transmit(ctx, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return c.await(ctx, cmd, resp)
}

// Send sends a command that has no response of its own. It still reports
// an error response that arrives within ErrorGrace of the ACK.
func (c *Client) Send(ctx context.Context, cmd string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := c.encode(cmd, args)
	if err != nil {
		return err
	}
	drain(c.resp)
	if err := c.transmit(ctx, payload); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	gctx, cancel := context.WithTimeout(ctx, c.ErrorGrace)
	defer cancel()
	_, err = c.await(gctx, cmd, "")
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return nil
}

// Identify downloads the device dictionary and switches to it.
func (c *Client) Identify(ctx context.Context) error {
	var text []byte
	for {
		r, err := c.Call(ctx, "identify", "identify_response", uint32(len(text)), identifyChunk)
		if err != nil {
			return fmt.Errorf("identify at offset %d: %w", len(text), err)
		}
		if got := r.Uint("offset"); got != uint32(len(text)) {
			return fmt.Errorf("identify: offset %d, want %d", got, len(text))
		}
		chunk := r.Bytes("data")
		text = append(text, chunk...)
		if len(chunk) < identifyChunk {
			break
		}
	}
	dict, err := ParseDictionary(text)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.dict = dict
	c.mu.Unlock()
	dlog.Infof("link: dictionary has %d messages", len(dict.Messages()))
	return nil
}
