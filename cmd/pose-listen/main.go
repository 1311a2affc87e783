package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// pose-listen connects to the daemon's /ws/state feed and prints what it
// sees: phase changes, settings, engine status and (optionally) pose frames.

type envelope struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type handPhase struct {
	Side    string `json:"side"`
	From    string `json:"from"`
	To      string `json:"to"`
	Badness int    `json:"badness"`
}

type poseHand struct {
	Side           string       `json:"side"`
	Position       [3]float64   `json:"position"`
	Rotation       [4]float64   `json:"rotation"`
	PositionWeight float64      `json:"position_weight"`
	RotationWeight float64      `json:"rotation_weight"`
	Joints         [][4]float64 `json:"joints"`
}

type poseFrame struct {
	Seq   uint64      `json:"seq"`
	T     float64     `json:"t"`
	Hands [2]poseHand `json:"hands"`
}

type options struct {
	url    string
	poses  bool
	pretty bool
}

func main() {
	var o options
	cmd := &cobra.Command{
		Use:          "pose-listen",
		Short:        "Print the handsteady state websocket feed",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listen(o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.url, "ws", "ws://127.0.0.1:3011/ws/state", "handsteady state websocket URL")
	cmd.Flags().BoolVar(&o.poses, "poses", false, "Also print pose frames (coalesced to ~20 Hz)")
	cmd.Flags().BoolVar(&o.pretty, "pretty", false, "Pretty-print raw JSON payloads")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func listen(o options, w io.Writer) error {
	u, err := url.Parse(o.url)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	// Only the ping goroutine and the shutdown path write.
	var writeMu sync.Mutex

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			// The daemon pings every 20s; any traffic keeps us alive.
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			printMessage(w, msg, o)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
	return nil
}

// printMessage renders one state feed message.
func printMessage(w io.Writer, msg []byte, o options) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		fmt.Fprintf(w, "[TEXT] %s\n", msg)
		return
	}
	ts := env.Ts.Local().Format("15:04:05.000")

	switch env.Type {
	case "hand_phase":
		var hp handPhase
		if err := json.Unmarshal(env.Data, &hp); err == nil {
			fmt.Fprintf(w, "%s [PHASE] %-5s %s -> %s (badness %d)\n", ts, hp.Side, hp.From, hp.To, hp.Badness)
			return
		}

	case "pose":
		if !o.poses {
			return
		}
		var pf poseFrame
		if err := json.Unmarshal(env.Data, &pf); err == nil {
			l, r := pf.Hands[0], pf.Hands[1]
			fmt.Fprintf(w, "%s [POSE] #%d t=%.2f left w=%.2f pos=%.3f right w=%.2f pos=%.3f\n",
				ts, pf.Seq, pf.T, l.PositionWeight, l.Position, r.PositionWeight, r.Position)
			return
		}
	}

	data := []byte(env.Data)
	if o.pretty {
		var v any
		if err := json.Unmarshal(env.Data, &v); err == nil {
			data, _ = json.MarshalIndent(v, "", "  ")
		}
	}
	fmt.Fprintf(w, "%s [%s] %s\n", ts, env.Type, data)
}
