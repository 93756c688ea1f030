package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/claude/posereps/internal/protocol"
)

var (
	streamServer   string
	streamExercise string
	streamPatient  string
	streamFrames   string
	streamOut      string
	streamFPS      float64
	streamDeadline time.Duration
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream a directory of JPEG frames to a server until it ends the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		frames, err := frameFiles(streamFrames)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), streamDeadline)
		defer cancel()

		ended, err := streamSession(ctx, streamClient{
			url:        streamServer,
			exerciseID: streamExercise,
			patientID:  streamPatient,
			frames:     frames,
			interval:   time.Duration(float64(time.Second) / streamFPS),
			outDir:     streamOut,
		})
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %s\n", cyan("Session"), ended.SessionID)
		fmt.Printf("  Total reps:    %d\n", ended.TotalReps)
		fmt.Printf("  Good reps:     %d\n", ended.GoodReps)
		fmt.Printf("  Avg rep time:  %s\n", ended.AverageRepTime)
		fmt.Printf("  Score:         %.1f\n", ended.Score)
		return nil
	},
}

func init() {
	streamCmd.Flags().StringVar(&streamServer, "server", "ws://localhost:8080/pose/ws/analyze", "stream endpoint")
	streamCmd.Flags().StringVarP(&streamExercise, "exercise", "e", "curl", "exercise id")
	streamCmd.Flags().StringVarP(&streamPatient, "patient", "p", "", "patient id")
	streamCmd.Flags().StringVarP(&streamFrames, "frames", "f", "", "directory of .jpg frames, sent in name order and repeated until the session ends")
	streamCmd.Flags().StringVarP(&streamOut, "out", "o", "", "directory to write annotated frames to")
	streamCmd.Flags().Float64Var(&streamFPS, "fps", 10, "frames per second")
	streamCmd.Flags().DurationVar(&streamDeadline, "deadline", 2*time.Minute, "give up after this long")
	_ = streamCmd.MarkFlagRequired("patient")
	_ = streamCmd.MarkFlagRequired("frames")
	rootCmd.AddCommand(streamCmd)
}

func frameFiles(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frames: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".jpg" || ext == ".jpeg") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no .jpg frames in %s", dir)
	}
	sort.Strings(names)

	frames := make([][]byte, 0, len(names))
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	return frames, nil
}

type streamClient struct {
	url        string
	exerciseID string
	patientID  string
	frames     [][]byte
	interval   time.Duration
	outDir     string
}

// streamSession performs the handshake and sends frames, cycling through them,
// until the server sends its final text message. The server also ends the
// session on its own once the budget runs out between frames.
func streamSession(ctx context.Context, c streamClient) (protocol.SessionEnded, error) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return protocol.SessionEnded{}, fmt.Errorf("connecting to %s: %w", c.url, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(32 << 20)

	hello, err := json.Marshal(map[string]any{
		"exercise_id": c.exerciseID,
		"patient_id":  c.patientID,
		"timestamp":   float64(time.Now().UnixMilli()) / 1000,
	})
	if err != nil {
		return protocol.SessionEnded{}, err
	}
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		return protocol.SessionEnded{}, fmt.Errorf("sending init message: %w", err)
	}

	if c.outDir != "" {
		if err := os.MkdirAll(c.outDir, 0o755); err != nil {
			return protocol.SessionEnded{}, err
		}
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for i := 0; ; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, c.frames[i%len(c.frames)]); err != nil {
			// The server may have ended the session while we were waiting to send.
			if typ, data, rerr := conn.Read(ctx); rerr == nil && typ == websocket.MessageText {
				return finalMessage(string(data))
			}
			return protocol.SessionEnded{}, fmt.Errorf("sending frame %d: %w", i, err)
		}
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return protocol.SessionEnded{}, fmt.Errorf("reading reply to frame %d: %w", i, err)
		}
		if typ == websocket.MessageText {
			return finalMessage(string(data))
		}
		if c.outDir != "" {
			name := filepath.Join(c.outDir, fmt.Sprintf("frame_%05d.jpg", i))
			if err := os.WriteFile(name, data, 0o644); err != nil {
				return protocol.SessionEnded{}, err
			}
		}

		select {
		case <-ctx.Done():
			return protocol.SessionEnded{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func finalMessage(text string) (protocol.SessionEnded, error) {
	if reason, ok := protocol.ParseErrorText(text); ok {
		return protocol.SessionEnded{}, errors.New("server rejected session: " + reason)
	}
	return protocol.ParseSessionEnded(text)
}
