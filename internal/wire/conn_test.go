package wire

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// testPair returns a Conn wired to an in-process peer standing in for
// the compositor.
func testPair(t *testing.T) (*Conn, *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	clientFile := os.NewFile(uintptr(fds[0]), "wayland-client")
	serverFile := os.NewFile(uintptr(fds[1]), "wayland-server")

	clientNet, err := net.FileConn(clientFile)
	_ = clientFile.Close()
	if err != nil {
		t.Fatalf("client FileConn: %v", err)
	}
	serverNet, err := net.FileConn(serverFile)
	_ = serverFile.Close()
	if err != nil {
		t.Fatalf("server FileConn: %v", err)
	}

	conn, err := New(clientNet.(*net.UnixConn))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	server := serverNet.(*net.UnixConn)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = server.Close()
	})
	return conn, server
}

// frame builds one wire message.
func frame(object uint32, opcode uint16, body []byte) []byte {
	msg := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint32(msg[0:4], object)
	binary.LittleEndian.PutUint32(msg[4:8], uint32(8+len(body))<<16|uint32(opcode))
	copy(msg[8:], body)
	return msg
}

// serverWrite pushes a compositor message to the client.
func serverWrite(t *testing.T, server *net.UnixConn, object uint32, opcode uint16, body []byte) {
	t.Helper()
	if _, err := server.Write(frame(object, opcode, body)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

// serverRead reads exactly one request off the server side.
func serverRead(t *testing.T, server *net.UnixConn) (object uint32, opcode uint16, body []byte) {
	t.Helper()
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	var header [8]byte
	if _, err := io.ReadFull(server, header[:]); err != nil {
		t.Fatalf("server read header: %v", err)
	}
	object = binary.LittleEndian.Uint32(header[0:4])
	sizeOp := binary.LittleEndian.Uint32(header[4:8])
	size := int(sizeOp >> 16)
	opcode = uint16(sizeOp & 0xffff)
	body = make([]byte, size-8)
	if _, err := io.ReadFull(server, body); err != nil {
		t.Fatalf("server read body: %v", err)
	}
	return object, opcode, body
}

// recordProxy captures dispatched events.
type recordProxy struct {
	id     uint32
	events []struct {
		opcode uint16
		arg    uint32
	}
}

func (p *recordProxy) ID() uint32 { return p.id }

func (p *recordProxy) Dispatch(ev *Event) {
	p.events = append(p.events, struct {
		opcode uint16
		arg    uint32
	}{ev.Opcode, ev.Uint32()})
}

func TestSendRequest_Framing(t *testing.T) {
	conn, server := testPair(t)

	if err := conn.SendRequest(3, 0, uint32(7), "wl_seat", uint32(5), uint32(4)); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	// Buffered until Flush: nothing should be readable yet.
	_ = server.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	one := make([]byte, 1)
	if _, err := server.Read(one); err == nil {
		t.Fatal("request reached the socket before Flush")
	}
	_ = server.SetReadDeadline(time.Time{})

	if err := conn.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	object, opcode, body := serverRead(t, server)
	if object != 3 || opcode != 0 {
		t.Fatalf("got object=%d opcode=%d, want 3/0", object, opcode)
	}
	want := buildArgs(argU32(7), argStr("wl_seat"), argU32(5), argU32(4))
	if string(body) != string(want) {
		t.Errorf("body = %v, want %v", body, want)
	}
}

func TestReadEvents_NoDataIsFlushOnlyNoop(t *testing.T) {
	conn, server := testPair(t)
	proxy := &recordProxy{id: 9}
	conn.Register(proxy)

	if err := conn.SendRequest(9, 2); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	// Two consecutive calls with nothing readable: side-effect-free
	// beyond flushing the queued request.
	if err := conn.ReadEvents(); err != nil {
		t.Fatalf("first ReadEvents: %v", err)
	}
	if err := conn.ReadEvents(); err != nil {
		t.Fatalf("second ReadEvents: %v", err)
	}
	if conn.prepared {
		t.Error("prepared read left unmatched")
	}
	if len(proxy.events) != 0 {
		t.Errorf("dispatched %d events, want 0", len(proxy.events))
	}

	// The flush must have happened on the first call.
	object, opcode, _ := serverRead(t, server)
	if object != 9 || opcode != 2 {
		t.Errorf("flushed request = object %d opcode %d, want 9/2", object, opcode)
	}
}

func TestReadEvents_DispatchesReadyData(t *testing.T) {
	conn, server := testPair(t)
	proxy := &recordProxy{id: 9}
	conn.Register(proxy)

	serverWrite(t, server, 9, 4, argU32(123))
	if err := conn.ReadEvents(); err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(proxy.events) != 1 || proxy.events[0].opcode != 4 || proxy.events[0].arg != 123 {
		t.Fatalf("events = %+v, want one opcode-4 event with arg 123", proxy.events)
	}
	if conn.prepared {
		t.Error("prepared read left unmatched after successful read")
	}
}

func TestReadEvents_PartialMessage(t *testing.T) {
	conn, server := testPair(t)
	proxy := &recordProxy{id: 9}
	conn.Register(proxy)

	msg := frame(9, 4, argU32(55))
	if _, err := server.Write(msg[:5]); err != nil {
		t.Fatalf("partial write: %v", err)
	}
	if err := conn.ReadEvents(); err != nil {
		t.Fatalf("ReadEvents on partial: %v", err)
	}
	if len(proxy.events) != 0 {
		t.Fatalf("dispatched %d events from a partial message", len(proxy.events))
	}

	if _, err := server.Write(msg[5:]); err != nil {
		t.Fatalf("remainder write: %v", err)
	}
	if err := conn.ReadEvents(); err != nil {
		t.Fatalf("ReadEvents on remainder: %v", err)
	}
	if len(proxy.events) != 1 || proxy.events[0].arg != 55 {
		t.Fatalf("events = %+v, want one event with arg 55", proxy.events)
	}
}

func TestDispatchPending_NoReads(t *testing.T) {
	conn, server := testPair(t)
	proxy := &recordProxy{id: 9}
	conn.Register(proxy)

	serverWrite(t, server, 9, 1, argU32(1))

	// DispatchPending must not touch the socket: the event is still in
	// the kernel buffer, so nothing can have been dispatched.
	if err := conn.DispatchPending(); err != nil {
		t.Fatalf("DispatchPending: %v", err)
	}
	if len(proxy.events) != 0 {
		t.Errorf("DispatchPending read from the socket: %d events", len(proxy.events))
	}

	// After ReadEvents pulls it in, DispatchPending drains the queue.
	if err := conn.ReadEvents(); err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(proxy.events) != 1 {
		t.Errorf("events = %d, want 1", len(proxy.events))
	}
}

func TestDisplayError_Sticky(t *testing.T) {
	conn, server := testPair(t)

	body := buildArgs(argU32(4), argU32(1), argStr("invalid object"))
	serverWrite(t, server, 1, evDisplayError, body)

	if err := conn.ReadEvents(); err == nil {
		t.Fatal("ReadEvents did not surface the protocol error")
	}
	if conn.Err() == nil {
		t.Error("Err() not sticky after protocol error")
	}
}

func TestMalformedFrame_PoisonsConnection(t *testing.T) {
	conn, server := testPair(t)
	proxy := &recordProxy{id: 9}
	conn.Register(proxy)

	// A header claiming size 4 can never frame a message.
	var bad [8]byte
	binary.LittleEndian.PutUint32(bad[0:4], 9)
	binary.LittleEndian.PutUint32(bad[4:8], 4<<16|0)
	if _, err := server.Write(bad[:]); err != nil {
		t.Fatalf("server write: %v", err)
	}

	if err := conn.ReadEvents(); err == nil {
		t.Fatal("ReadEvents accepted a malformed frame")
	}
	if conn.Err() == nil {
		t.Error("Err() not sticky after framing failure")
	}
	if len(conn.pending) != 0 {
		t.Error("bad bytes left buffered for re-parsing")
	}
	// Later pumps fail fast instead of re-reading garbage.
	if err := conn.ReadEvents(); err == nil {
		t.Error("ReadEvents succeeded on a poisoned connection")
	}
	if len(proxy.events) != 0 {
		t.Errorf("dispatched %d events from a malformed stream", len(proxy.events))
	}
}

func TestDeleteID_DropsObject(t *testing.T) {
	conn, server := testPair(t)
	proxy := &recordProxy{id: 9}
	conn.Register(proxy)

	serverWrite(t, server, 1, evDisplayDeleteID, argU32(9))
	serverWrite(t, server, 9, 4, argU32(1)) // in-flight event after delete

	if err := conn.ReadEvents(); err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(proxy.events) != 0 {
		t.Errorf("deleted object still received %d events", len(proxy.events))
	}
}

func TestRoundtrip(t *testing.T) {
	conn, server := testPair(t)

	go func() {
		// Minimal sync responder; avoids t.Fatalf off the test goroutine.
		var header [8]byte
		if _, err := io.ReadFull(server, header[:]); err != nil {
			return
		}
		object := binary.LittleEndian.Uint32(header[0:4])
		sizeOp := binary.LittleEndian.Uint32(header[4:8])
		body := make([]byte, int(sizeOp>>16)-8)
		if _, err := io.ReadFull(server, body); err != nil {
			return
		}
		if object != displayID || uint16(sizeOp&0xffff) != reqDisplaySync {
			return
		}
		cb := binary.LittleEndian.Uint32(body)
		_, _ = server.Write(frame(cb, evCallbackDone, argU32(1)))
		_, _ = server.Write(frame(displayID, evDisplayDeleteID, argU32(cb)))
	}()

	if err := conn.Roundtrip(); err != nil {
		t.Fatalf("Roundtrip: %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	conn, _ := testPair(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := conn.SendRequest(2, 0); err == nil {
		t.Error("SendRequest after Close did not fail")
	}
}

func TestDial_NoServer(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("WAYLAND_DISPLAY", "wayland-missing")

	if _, err := Dial(""); err == nil {
		t.Fatal("Dial succeeded with no socket present")
	}
}

func TestDial_NoRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("WAYLAND_DISPLAY", "wayland-0")

	if _, err := Dial(""); err == nil {
		t.Fatal("Dial succeeded without XDG_RUNTIME_DIR")
	}
}
