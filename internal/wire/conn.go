// Package wire implements the client side of the Wayland wire protocol:
// the socket connection, message codec, object table, and the
// non-blocking read pump used to drive the connection from an external
// readiness-based event loop.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Core protocol object IDs and opcodes. wl_display is always object 1.
const (
	displayID = 1

	reqDisplaySync        = 0
	reqDisplayGetRegistry = 1

	evDisplayError    = 0
	evDisplayDeleteID = 1

	evCallbackDone = 0
)

// Proxy is the client-side representation of one protocol object.
// Dispatch is invoked with each event the server sends to the object.
type Proxy interface {
	ID() uint32
	Dispatch(*Event)
}

// Conn is a connection to a Wayland compositor. It owns the socket, the
// object table, the outgoing request buffer, and the queue of decoded
// but not yet dispatched events.
//
// Conn is not safe for concurrent use: it is designed to be driven by a
// single readiness-based loop (see ReadEvents).
type Conn struct {
	conn *net.UnixConn
	file *os.File // dup of the socket descriptor, backs Fd()

	objects map[uint32]Proxy
	nextID  uint32

	out      []byte   // queued outgoing requests, written on Flush
	pending  []byte   // inbound bytes not yet forming a complete message
	queue    []*Event // decoded events awaiting dispatch
	readBuf  [64 * 1024]byte
	prepared bool

	fatal  error // sticky wl_display.error
	closed bool
}

// Dial connects to the compositor socket. An empty name uses
// $WAYLAND_DISPLAY (default "wayland-0"); relative names resolve under
// $XDG_RUNTIME_DIR, absolute paths are used as-is.
func Dial(name string) (*Conn, error) {
	if name == "" {
		name = os.Getenv("WAYLAND_DISPLAY")
		if name == "" {
			name = "wayland-0"
		}
	}
	if !filepath.IsAbs(name) {
		runDir := os.Getenv("XDG_RUNTIME_DIR")
		if runDir == "" {
			return nil, errors.New("XDG_RUNTIME_DIR not set")
		}
		name = filepath.Join(runDir, name)
	}

	c, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: name, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("dial wayland socket: %w", err)
	}
	conn, err := New(c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return conn, nil
}

// New wraps an already-established unix connection. Tests use this with
// one end of a socketpair standing in for the compositor.
func New(c *net.UnixConn) (*Conn, error) {
	f, err := c.File()
	if err != nil {
		return nil, fmt.Errorf("get socket fd: %w", err)
	}
	return &Conn{
		conn:    c,
		file:    f,
		objects: make(map[uint32]Proxy),
		nextID:  2, // 1 is wl_display
	}, nil
}

// Fd returns the connection's readiness descriptor for registration
// with a poll/select-based event loop.
func (c *Conn) Fd() int {
	return int(c.file.Fd())
}

// Err returns the sticky protocol error, if the server reported one.
func (c *Conn) Err() error {
	return c.fatal
}

// Allocate reserves the next client-side object ID.
func (c *Conn) Allocate() uint32 {
	id := c.nextID
	c.nextID++
	return id
}

// Register adds a proxy to the object table so events reach it.
func (c *Conn) Register(p Proxy) {
	c.objects[p.ID()] = p
}

// Unregister removes an object; later events for the ID are dropped.
func (c *Conn) Unregister(id uint32) {
	delete(c.objects, id)
}

// SendRequest queues a request for the given object. Arguments may be
// uint32, int32, or string. Nothing is written to the socket until
// Flush; Wayland requests are buffered exactly so a batch can go out in
// one write.
func (c *Conn) SendRequest(object uint32, opcode uint16, args ...interface{}) error {
	if c.closed {
		return errors.New("connection closed")
	}

	body := make([]byte, 0, 32)
	for _, arg := range args {
		switch v := arg.(type) {
		case uint32:
			body = binary.LittleEndian.AppendUint32(body, v)
		case int32:
			body = binary.LittleEndian.AppendUint32(body, uint32(v))
		case string:
			n := len(v) + 1 // include NUL
			body = binary.LittleEndian.AppendUint32(body, uint32(n))
			body = append(body, v...)
			body = append(body, 0)
			for i := 0; i < pad4(n); i++ {
				body = append(body, 0)
			}
		default:
			return fmt.Errorf("unsupported argument type %T", arg)
		}
	}

	size := 8 + len(body)
	if size > 0xffff {
		return fmt.Errorf("request too large: %d bytes", size)
	}
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], object)
	binary.LittleEndian.PutUint32(header[4:8], uint32(size)<<16|uint32(opcode))
	c.out = append(c.out, header[:]...)
	c.out = append(c.out, body...)
	return nil
}

// Flush writes all queued requests to the socket.
func (c *Conn) Flush() error {
	if c.closed || len(c.out) == 0 {
		return nil
	}
	if _, err := c.conn.Write(c.out); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	c.out = c.out[:0]
	return nil
}

// DispatchPending delivers every already-decoded event to its proxy and
// flushes queued requests. It performs no socket reads and is safe to
// call at any idle moment.
func (c *Conn) DispatchPending() error {
	for len(c.queue) > 0 {
		ev := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.dispatch(ev); err != nil {
			return err
		}
	}
	return c.Flush()
}

// ReadEvents drains the socket without ever blocking. The sequence is
// fixed: prepare a read (dispatching queued events first so none are
// skipped), flush, check readiness with a zero timeout, then either
// read-and-dispatch or cancel the prepared read. Each successful
// prepare is matched by exactly one read or one cancel. With no data
// pending this degrades to a flush-only no-op.
func (c *Conn) ReadEvents() error {
	if c.closed {
		return errors.New("connection closed")
	}
	if c.fatal != nil {
		return c.fatal
	}
	for !c.prepareRead() {
		if err := c.DispatchPending(); err != nil {
			return err
		}
	}
	if err := c.Flush(); err != nil {
		c.cancelRead()
		return err
	}
	ready, err := c.readable(0)
	if err != nil {
		c.cancelRead()
		return err
	}
	if !ready {
		c.cancelRead()
		return nil
	}
	if err := c.read(); err != nil {
		return err
	}
	return c.DispatchPending()
}

// Roundtrip sends wl_display.sync and blocks until the compositor's
// done callback arrives, dispatching everything queued before it. This
// is the only blocking operation on a Conn and is intended for startup.
func (c *Conn) Roundtrip() error {
	cb := &callback{id: c.Allocate(), conn: c}
	c.Register(cb)
	if err := c.SendRequest(displayID, reqDisplaySync, cb.id); err != nil {
		c.Unregister(cb.id)
		return err
	}
	for !cb.fired {
		if err := c.Flush(); err != nil {
			return err
		}
		if _, err := c.readable(-1); err != nil {
			return err
		}
		if err := c.read(); err != nil {
			return err
		}
		if err := c.DispatchPending(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the socket and descriptor. Idempotent.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.queue = nil
	c.pending = nil
	c.objects = nil
	_ = c.file.Close()
	return c.conn.Close()
}

// prepareRead succeeds only when no decoded events are waiting; callers
// must dispatch and retry otherwise, so buffered data is never skipped.
func (c *Conn) prepareRead() bool {
	if len(c.queue) > 0 {
		return false
	}
	c.prepared = true
	return true
}

func (c *Conn) cancelRead() {
	c.prepared = false
}

// read pulls whatever is available off the socket and decodes complete
// messages into the event queue. It consumes the prepared-read state.
func (c *Conn) read() error {
	c.prepared = false
	n, err := c.conn.Read(c.readBuf[:])
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	c.pending = append(c.pending, c.readBuf[:n]...)
	return c.decode()
}

// decode splits c.pending into framed messages. A trailing partial
// message stays buffered until the next read completes it.
func (c *Conn) decode() error {
	for len(c.pending) >= 8 {
		object := binary.LittleEndian.Uint32(c.pending[0:4])
		sizeOp := binary.LittleEndian.Uint32(c.pending[4:8])
		size := int(sizeOp >> 16)
		opcode := uint16(sizeOp & 0xffff)
		if size < 8 {
			// Framing is unrecoverable from here; poison the connection
			// rather than re-parsing the same bytes on every read.
			c.fatal = fmt.Errorf("invalid message size %d for object %d", size, object)
			c.pending = nil
			return c.fatal
		}
		if len(c.pending) < size {
			return nil
		}
		body := make([]byte, size-8)
		copy(body, c.pending[8:size])
		c.pending = c.pending[size:]
		c.queue = append(c.queue, &Event{Object: object, Opcode: opcode, data: body})
	}
	return nil
}

func (c *Conn) dispatch(ev *Event) error {
	if ev.Object == displayID {
		return c.handleDisplayEvent(ev)
	}
	if p, ok := c.objects[ev.Object]; ok {
		p.Dispatch(ev)
	}
	// Events for unknown IDs are dropped: the object was destroyed
	// client-side while the server still had events in flight.
	return nil
}

func (c *Conn) handleDisplayEvent(ev *Event) error {
	switch ev.Opcode {
	case evDisplayError:
		object := ev.Uint32()
		code := ev.Uint32()
		message := ev.String()
		c.fatal = fmt.Errorf("protocol error on object %d, code %d: %s", object, code, message)
		return c.fatal
	case evDisplayDeleteID:
		c.Unregister(ev.Uint32())
	}
	return nil
}

// callback is the wl_callback created by Roundtrip.
type callback struct {
	id    uint32
	conn  *Conn
	fired bool
}

func (cb *callback) ID() uint32 {
	return cb.id
}

func (cb *callback) Dispatch(ev *Event) {
	if ev.Opcode == evCallbackDone {
		cb.fired = true
		cb.conn.Unregister(cb.id)
	}
}
