package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/wayfocus/wayfocus/internal/model"
	"github.com/wayfocus/wayfocus/internal/toplevel"
	"github.com/wayfocus/wayfocus/internal/version"
	"golang.org/x/sys/unix"
)

// mcpServer wraps the MCP server with the tracker and the pump
// goroutine that drives it. The tracker itself is single-threaded; only
// the pump goroutine touches it, and tool handlers read the state it
// publishes under the mutex.
type mcpServer struct {
	mcp *mcpserver.MCPServer

	mu      sync.Mutex
	tracker *toplevel.Tracker
	last    *model.FocusEvent
	stop    chan struct{}
	stopped chan struct{}
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Transport string
	Port      int
	Socket    string
}

// newMCPServer connects the tracker, starts the pump, and registers the
// focus tools.
func newMCPServer(cfg MCPConfig) (*mcpServer, error) {
	tracker, err := toplevel.Connect(toplevel.Options{Socket: cfg.Socket})
	if err != nil {
		return nil, err
	}

	s := &mcpServer{
		tracker: tracker,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	tracker.NotifyFunc(func(ev model.FocusEvent) {
		// Fires from inside the pump's ReadEvents, so the lock is held.
		s.last = &ev
	})
	if active := tracker.Active(); active != nil {
		s.last = &model.FocusEvent{App: active.App, Title: active.Title, Focused: true}
	}

	s.mcp = mcpserver.NewMCPServer("wayfocus", version.Version)
	s.registerTools()

	go s.pump()
	return s, nil
}

// serve starts the MCP server with the configured transport.
func (s *mcpServer) serve(cfg MCPConfig) error {
	switch cfg.Transport {
	case "stdio":
		return mcpserver.ServeStdio(s.mcp)
	case "streamable-http":
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
		return httpServer.Start(fmt.Sprintf(":%d", cfg.Port))
	default:
		return fmt.Errorf("unsupported transport: %s (use stdio or streamable-http)", cfg.Transport)
	}
}

// close stops the pump and releases the tracker.
func (s *mcpServer) close() {
	close(s.stop)
	<-s.stopped
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.tracker.Close()
}

// pump drives the tracker from its own readiness loop.
func (s *mcpServer) pump() {
	defer close(s.stopped)
	fd := s.tracker.Fd()
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		fds[0].Revents = 0
		n, err := unix.Poll(fds, 250)
		if err == unix.EINTR {
			continue
		}
		if err != nil || fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			return
		}
		s.mu.Lock()
		if n == 0 {
			err = s.tracker.DispatchPending()
		} else {
			err = s.tracker.ReadEvents()
		}
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *mcpServer) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool("focus_current",
			mcp.WithDescription("Get the window that currently holds input focus (app id, title, handle id)"),
		),
		s.handleFocusCurrent,
	)

	s.mcp.AddTool(
		mcp.NewTool("windows_list",
			mcp.WithDescription("List open toplevel windows with app id, title, and activated state"),
			mcp.WithBoolean("activated", mcp.Description("Only return activated windows")),
			mcp.WithString("app", mcp.Description("Filter by app id substring")),
		),
		s.handleWindowsList,
	)
}

func (s *mcpServer) handleFocusCurrent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	active := s.tracker.Active()
	last := s.last
	s.mu.Unlock()

	result := CurrentResult{Focused: false}
	switch {
	case active != nil:
		result = CurrentResult{Focused: true, App: active.App, Title: active.Title, ID: active.ID}
	case last != nil:
		// No window is activated right now; report the last known
		// focus snapshot so agents can still attribute recent input.
		result = CurrentResult{Focused: false, App: last.App, Title: last.Title}
	}
	return toolResultJSON(result)
}

func (s *mcpServer) handleWindowsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	activatedOnly := req.GetBool("activated", false)
	appFilter := req.GetString("app", "")

	s.mu.Lock()
	windows := s.tracker.Windows()
	s.mu.Unlock()

	filtered := make([]model.Window, 0, len(windows))
	for _, w := range windows {
		if activatedOnly && !w.Activated {
			continue
		}
		if appFilter != "" && !containsFold(w.App, appFilter) {
			continue
		}
		filtered = append(filtered, w)
	}
	return toolResultJSON(struct {
		TS      int64          `json:"ts"`
		Windows []model.Window `json:"windows"`
	}{TS: time.Now().Unix(), Windows: filtered})
}

// toolResultJSON marshals v as the tool's text content.
func toolResultJSON(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
