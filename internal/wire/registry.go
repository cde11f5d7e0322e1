package wire

const (
	reqRegistryBind = 0

	evRegistryGlobal       = 0
	evRegistryGlobalRemove = 1
)

// Global is one capability advertised by the compositor.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// GlobalFunc is called when a matching global is announced.
type GlobalFunc func(name, version uint32)

// Registry is the wl_registry proxy. It records every advertised global
// and runs the handler registered for an interface when that interface
// is announced.
type Registry struct {
	id       uint32
	conn     *Conn
	globals  map[uint32]Global
	handlers map[string]GlobalFunc
}

// GetRegistry creates the wl_registry object. Globals arrive as events
// after the next roundtrip.
func (c *Conn) GetRegistry() (*Registry, error) {
	r := &Registry{
		id:       c.Allocate(),
		conn:     c,
		globals:  make(map[uint32]Global),
		handlers: make(map[string]GlobalFunc),
	}
	c.Register(r)
	if err := c.SendRequest(displayID, reqDisplayGetRegistry, r.id); err != nil {
		c.Unregister(r.id)
		return nil, err
	}
	return r, nil
}

func (r *Registry) ID() uint32 {
	return r.id
}

// Handle registers fn for announcements of the named interface.
func (r *Registry) Handle(iface string, fn GlobalFunc) {
	r.handlers[iface] = fn
}

// Bind binds the named global to the client-allocated object ID. The
// new_id argument for wl_registry.bind carries the interface name and
// version alongside the ID.
func (r *Registry) Bind(name uint32, iface string, version, id uint32) error {
	return r.conn.SendRequest(r.id, reqRegistryBind, name, iface, version, id)
}

// Lookup returns the advertised global for an interface, if any.
func (r *Registry) Lookup(iface string) (Global, bool) {
	for _, g := range r.globals {
		if g.Interface == iface {
			return g, true
		}
	}
	return Global{}, false
}

func (r *Registry) Dispatch(ev *Event) {
	switch ev.Opcode {
	case evRegistryGlobal:
		name := ev.Uint32()
		iface := ev.String()
		version := ev.Uint32()
		r.globals[name] = Global{Name: name, Interface: iface, Version: version}
		if fn, ok := r.handlers[iface]; ok {
			fn(name, version)
		}
	case evRegistryGlobalRemove:
		delete(r.globals, ev.Uint32())
	}
}
