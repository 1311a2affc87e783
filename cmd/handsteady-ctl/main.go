package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// ============================================================================
// handsteady-ctl - Command-line IPC Client
// ============================================================================
// Sends operator commands to the handsteady daemon over its Unix socket.
//
// Usage:
//   handsteady-ctl mirror on|off|toggle
//   handsteady-ctl swap on|off|toggle
//   handsteady-ctl tracking on|off|toggle
//   handsteady-ctl reinit [--skip N]
//   handsteady-ctl status [--json]
// ============================================================================

const defaultSocket = "/tmp/handsteady.sock"

// envelope is the daemon's line-delimited JSON request format
// (duplicated from the daemon for a standalone binary).
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type handState struct {
	Side    string  `json:"side"`
	Phase   string  `json:"phase"`
	Weight  float64 `json:"weight"`
	Badness int     `json:"badness"`
}

type daemonState struct {
	Mirror    bool `json:"mirror"`
	Swap      bool `json:"swap"`
	Track     bool `json:"track"`
	Mirroring bool `json:"mirroring"`

	Disabled  bool   `json:"disabled"`
	InitError string `json:"init_error,omitempty"`

	Ticks             uint64  `json:"ticks"`
	Updates           uint64  `json:"updates"`
	LastFrameSeq      uint64  `json:"last_frame_seq"`
	AvgTicksPerUpdate float64 `json:"avg_ticks_per_update"`
	EngineTime        float64 `json:"engine_time"`
	OutputFailures    int     `json:"output_failures"`

	Hands [2]handState `json:"hands"`
}

// response is the daemon's reply to every request line.
type response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var socket string

	root := &cobra.Command{
		Use:          "handsteady-ctl",
		Short:        "Control a running handsteady daemon via IPC",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&socket, "socket", defaultSocket, "Unix domain socket path")

	root.AddCommand(
		switchCmd("mirror", "Mirror hands (left drives right)", "set_mirror", "toggle_mirror", &socket),
		switchCmd("swap", "Swap sensor hands", "set_swap", "toggle_swap", &socket),
		switchCmd("tracking", "Master tracking switch", "set_tracking", "toggle_tracking", &socket),
		reinitCmd(&socket),
		statusCmd(&socket),
	)
	return root
}

// switchCmd builds an on|off|toggle subcommand for one engine switch.
func switchCmd(name, short, setType, toggleType string, socket *string) *cobra.Command {
	return &cobra.Command{
		Use:       name + " on|off|toggle",
		Short:     short,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off", "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := switchRequest(setType, toggleType, args[0])
			if err != nil {
				return err
			}
			if _, err := roundTrip(*socket, req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func switchRequest(setType, toggleType, arg string) (envelope, error) {
	switch arg {
	case "toggle":
		return envelope{Type: toggleType}, nil
	case "on", "off":
		data, _ := json.Marshal(struct {
			Enabled bool `json:"enabled"`
		}{arg == "on"})
		return envelope{Type: setType, Data: data}, nil
	default:
		return envelope{}, fmt.Errorf("invalid argument %q: want on, off or toggle", arg)
	}
}

func reinitCmd(socket *string) *cobra.Command {
	var skip int
	cmd := &cobra.Command{
		Use:   "reinit",
		Short: "Re-bind the rig and reset tracking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if skip < 0 {
				return errors.New("--skip must be >= 0")
			}
			req := envelope{Type: "reinitialize"}
			if skip > 0 {
				req.Data = json.RawMessage(`{"skip_frames":` + strconv.Itoa(skip) + `}`)
			}
			if _, err := roundTrip(*socket, req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "Ticks to skip after reinitializing (0 uses the daemon default)")
	return cmd
}

func statusCmd(socket *string) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(*socket, envelope{Type: "status"})
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), string(resp.State))
				return nil
			}
			var st daemonState
			if err := json.Unmarshal(resp.State, &st); err != nil {
				return fmt.Errorf("decode state: %w", err)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "Print the raw JSON state")
	return cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printStatus(w io.Writer, st daemonState) {
	if st.Disabled {
		fmt.Fprintf(w, "engine:    disabled (%s)\n", st.InitError)
	} else {
		fmt.Fprintln(w, "engine:    running")
	}
	fmt.Fprintf(w, "mirror:    %s (active: %s)\n", onOff(st.Mirror), onOff(st.Mirroring))
	fmt.Fprintf(w, "swap:      %s\n", onOff(st.Swap))
	fmt.Fprintf(w, "tracking:  %s\n", onOff(st.Track))
	fmt.Fprintf(w, "ticks:     %d (updates %d, %.2f ticks/update)\n", st.Ticks, st.Updates, st.AvgTicksPerUpdate)
	fmt.Fprintf(w, "frame:     %d\n", st.LastFrameSeq)
	if st.OutputFailures > 0 {
		fmt.Fprintf(w, "failures:  %d\n", st.OutputFailures)
	}
	for _, h := range st.Hands {
		fmt.Fprintf(w, "%-6s     %-10s weight %.2f badness %d\n", h.Side+":", h.Phase, h.Weight, h.Badness)
	}
}

// roundTrip sends one request line and decodes the reply.
func roundTrip(socketPath string, req envelope) (response, error) {
	var resp response

	line, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("marshal request: %w", err)
	}

	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return resp, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return resp, fmt.Errorf("send request: %w", err)
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}
