package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wayfocus/wayfocus/internal/model"
	"github.com/wayfocus/wayfocus/internal/toplevel"
	"golang.org/x/sys/unix"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream focus changes as JSONL",
	Long: `Watch the compositor and emit one JSON object per line whenever a
window gains input focus.

Each line has a "type" field: "snapshot" (initial state), "focus" (a
window gained focus), "error" (transport fault; the stream ends), or
"done" (clean shutdown). Output is always JSONL regardless of --format.

Use Ctrl+C or --duration to stop watching.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Int("duration", 0, "Max seconds to watch (0 = until Ctrl+C)")
}

// watchEvent is one JSONL record emitted by `watch`.
type watchEvent struct {
	Type    string `json:"type"`
	TS      int64  `json:"ts"`
	App     string `json:"app,omitempty"`
	Title   string `json:"title,omitempty"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
	Count   int    `json:"events,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	durationSec, _ := cmd.Flags().GetInt("duration")

	tracker, err := toplevel.Connect(toplevel.Options{Socket: socketFlag()})
	if err != nil {
		return err
	}
	defer tracker.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)

	eventCount := 0
	tracker.NotifyFunc(func(ev model.FocusEvent) {
		eventCount++
		_ = enc.Encode(watchEvent{
			Type:  "focus",
			TS:    time.Now().Unix(),
			App:   ev.App,
			Title: ev.Title,
		})
	})

	// Baseline: whatever was focused when we connected.
	snapshot := watchEvent{Type: "snapshot", TS: time.Now().Unix()}
	if active := tracker.Active(); active != nil {
		snapshot.App = active.App
		snapshot.Title = active.Title
	}
	_ = enc.Encode(snapshot)

	var deadline time.Time
	if durationSec > 0 {
		deadline = time.Now().Add(time.Duration(durationSec) * time.Second)
	}
	start := time.Now()

	fds := []unix.PollFd{{Fd: int32(tracker.Fd()), Events: unix.POLLIN}}
	for {
		if durationSec > 0 && time.Now().After(deadline) {
			break
		}

		fds[0].Revents = 0
		n, err := unix.Poll(fds, 250)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			// Idle tick: flush anything queued, no busy work.
			if err := tracker.DispatchPending(); err != nil {
				return err
			}
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			// The compositor went away; report and let the host decide
			// whether to reconnect.
			_ = enc.Encode(watchEvent{
				Type:  "error",
				TS:    time.Now().Unix(),
				Error: "compositor connection lost",
			})
			break
		}
		if err := tracker.ReadEvents(); err != nil {
			_ = enc.Encode(watchEvent{
				Type:  "error",
				TS:    time.Now().Unix(),
				Error: err.Error(),
			})
			break
		}
	}

	_ = enc.Encode(watchEvent{
		Type:    "done",
		TS:      time.Now().Unix(),
		Elapsed: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
		Count:   eventCount,
	})
	return nil
}
