package model

// Window represents one toplevel known to the compositor.
type Window struct {
	ID        uint32 `yaml:"id"              json:"id"`
	App       string `yaml:"app,omitempty"   json:"app,omitempty"`
	Title     string `yaml:"title,omitempty" json:"title,omitempty"`
	Activated bool   `yaml:"activated"       json:"activated"`
}

// FocusEvent is the immutable snapshot delivered when a window gains
// focus. It carries no reference back into live tracker state.
type FocusEvent struct {
	App     string `yaml:"app,omitempty"   json:"app,omitempty"`
	Title   string `yaml:"title,omitempty" json:"title,omitempty"`
	Focused bool   `yaml:"focused"         json:"focused"`
}
