// Package toplevel tracks which toplevel window currently holds input
// focus, using the wlr-foreign-toplevel-management compositor
// extension. A Tracker owns one connection, the set of live window
// records, and a single notification sink fired on focus gain.
package toplevel

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/wayfocus/wayfocus/internal/model"
	"github.com/wayfocus/wayfocus/internal/wire"
)

// ErrNoManager is returned by Connect when the compositor does not
// advertise the foreign-toplevel manager (e.g. GNOME's Mutter).
var ErrNoManager = fmt.Errorf("compositor does not advertise %s", ManagerInterface)

// NotifyFunc receives a snapshot when a window gains focus. It must not
// call back into the Tracker before returning; event ordering breaks
// otherwise.
type NotifyFunc func(model.FocusEvent)

// Options configures Connect.
type Options struct {
	// Socket overrides the compositor socket name or path. Empty uses
	// $WAYLAND_DISPLAY.
	Socket string
}

// Tracker is the foreign-toplevel tracking client. All methods must be
// called from the single goroutine driving the event loop.
type Tracker struct {
	conn    *wire.Conn
	manager *manager
	windows map[uint32]*window
	notify  NotifyFunc
	closed  bool
}

// Connect dials the compositor, enumerates globals, binds the toplevel
// manager, and collects the initial burst of pre-existing windows. On
// any failure every acquired resource is released before returning; a
// partially-connected Tracker is never observable.
func Connect(opts Options) (*Tracker, error) {
	conn, err := wire.Dial(opts.Socket)
	if err != nil {
		return nil, err
	}
	return connect(conn)
}

func connect(conn *wire.Conn) (*Tracker, error) {
	t := &Tracker{
		conn:    conn,
		windows: make(map[uint32]*window),
	}

	registry, err := conn.GetRegistry()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	registry.Handle(ManagerInterface, func(name, version uint32) {
		if t.manager != nil {
			return
		}
		if version > managerVersion {
			version = managerVersion
		}
		m := &manager{id: conn.Allocate(), tracker: t}
		conn.Register(m)
		if err := registry.Bind(name, ManagerInterface, version, m.id); err != nil {
			conn.Unregister(m.id)
			return
		}
		t.manager = m
	})

	// First roundtrip: every currently advertised global is announced,
	// so the manager is bound (or known absent) when this returns.
	if err := conn.Roundtrip(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enumerate globals: %w", err)
	}
	if t.manager == nil {
		_ = conn.Close()
		return nil, ErrNoManager
	}

	// Second roundtrip: windows that existed before this client
	// connected arrive as an initial burst of toplevel events.
	if err := conn.Roundtrip(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initial toplevel burst: %w", err)
	}
	return t, nil
}

// NotifyFunc registers the focus-gain sink, replacing any previous one.
func (t *Tracker) NotifyFunc(fn NotifyFunc) {
	t.notify = fn
}

// Fd returns the readiness descriptor to register with the host's
// event loop.
func (t *Tracker) Fd() int {
	return t.conn.Fd()
}

// DispatchPending processes protocol messages already buffered
// client-side and flushes queued requests. No socket reads occur.
func (t *Tracker) DispatchPending() error {
	return t.conn.DispatchPending()
}

// ReadEvents drains the socket without blocking; see wire.Conn.ReadEvents.
func (t *Tracker) ReadEvents() error {
	return t.conn.ReadEvents()
}

// Windows returns a snapshot of all known toplevels, ordered by ID.
func (t *Tracker) Windows() []model.Window {
	out := make([]model.Window, 0, len(t.windows))
	for _, w := range t.windows {
		out = append(out, w.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns the lowest-ID activated toplevel, or nil. Compositors
// may report several activated windows at once (one per seat); callers
// needing all of them should filter Windows.
func (t *Tracker) Active() *model.Window {
	for _, w := range t.Windows() {
		if w.Activated {
			return &w
		}
	}
	return nil
}

// Close releases every window record, the manager, and the connection,
// in that order. Safe to call twice.
func (t *Tracker) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	for id := range t.windows {
		_ = t.conn.SendRequest(id, reqHandleDestroy)
		t.conn.Unregister(id)
	}
	t.windows = make(map[uint32]*window)
	if t.manager != nil {
		_ = t.conn.SendRequest(t.manager.id, reqManagerStop)
		t.conn.Unregister(t.manager.id)
		t.manager = nil
	}
	_ = t.conn.Flush()
	return t.conn.Close()
}

// manager is the zwlr_foreign_toplevel_manager_v1 proxy.
type manager struct {
	id      uint32
	tracker *Tracker
}

func (m *manager) ID() uint32 {
	return m.id
}

func (m *manager) Dispatch(ev *wire.Event) {
	switch ev.Opcode {
	case evManagerToplevel:
		// The server allocates the handle ID and announces it here.
		id := ev.Uint32()
		w := &window{id: id, tracker: m.tracker}
		m.tracker.conn.Register(w)
		m.tracker.windows[id] = w
	case evManagerFinished:
		// The compositor is withdrawing the extension at runtime; the
		// manager reference dies here without a full Close.
		m.tracker.conn.Unregister(m.id)
		m.tracker.manager = nil
	}
}

// window is one zwlr_foreign_toplevel_handle_v1 proxy plus its tracked
// properties.
type window struct {
	id      uint32
	tracker *Tracker

	appID     string
	title     string
	activated bool
}

func (w *window) ID() uint32 {
	return w.id
}

func (w *window) Dispatch(ev *wire.Event) {
	switch ev.Opcode {
	case evHandleTitle:
		w.title = ev.String()
	case evHandleAppID:
		w.appID = ev.String()
	case evHandleState:
		was := w.activated
		w.activated = stateSetContains(ev.Array(), stateActivated)
		if w.activated && !was && w.tracker.notify != nil {
			w.tracker.notify(model.FocusEvent{
				App:     w.appID,
				Title:   w.title,
				Focused: true,
			})
		}
	case evHandleClosed:
		// The handle is inert after closed; release the server-side
		// resource instead of waiting for Close.
		_ = w.tracker.conn.SendRequest(w.id, reqHandleDestroy)
		delete(w.tracker.windows, w.id)
		w.tracker.conn.Unregister(w.id)
	case evHandleDone, evHandleOutputEnter, evHandleOutputLeave, evHandleParent:
		// done marks the end of a property burst; notifications are
		// deliberately eager, so nothing is buffered for it. The
		// output and parent events carry no state we track.
	}
}

func (w *window) snapshot() model.Window {
	return model.Window{
		ID:        w.id,
		App:       w.appID,
		Title:     w.title,
		Activated: w.activated,
	}
}

// stateSetContains reports whether the wire-format state array (packed
// little-endian uint32 entries) contains the given flag. The array is a
// complete replacement set, never a delta.
func stateSetContains(states []byte, flag uint32) bool {
	for off := 0; off+4 <= len(states); off += 4 {
		if binary.LittleEndian.Uint32(states[off:]) == flag {
			return true
		}
	}
	return false
}
