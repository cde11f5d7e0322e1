package toplevel

// wlr-foreign-toplevel-management-unstable-v1 opcodes and enums.
// https://gitlab.freedesktop.org/wlroots/wlr-protocols

// ManagerInterface is the global the compositor must advertise.
const ManagerInterface = "zwlr_foreign_toplevel_manager_v1"

// managerVersion is the highest protocol version this client speaks.
const managerVersion = 3

// zwlr_foreign_toplevel_manager_v1
const (
	reqManagerStop = 0

	evManagerToplevel = 0
	evManagerFinished = 1
)

// zwlr_foreign_toplevel_handle_v1
const (
	reqHandleDestroy = 7

	evHandleTitle       = 0
	evHandleAppID       = 1
	evHandleOutputEnter = 2
	evHandleOutputLeave = 3
	evHandleState       = 4
	evHandleDone        = 5
	evHandleClosed      = 6
	evHandleParent      = 7
)

// zwlr_foreign_toplevel_handle_v1.state entries.
const (
	stateMaximized  = 0
	stateMinimized  = 1
	stateActivated  = 2
	stateFullscreen = 3
)
