// Command livevad-client streams audio to a livevad server and prints the
// speech boundaries it reports.
//
// Input is a 16-bit mono WAV file, a raw S16LE file (-raw), or a synthetic
// silence/tone/silence pattern (-tone). Chunks are paced in real time unless
// -fast is set.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/livevad/pkg/audio"
	"github.com/MrWong99/livevad/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	url := flag.String("url", "ws://localhost:8080/ws", "livevad WebSocket URL")
	rawRate := flag.Int("raw", 0, "treat the input as raw S16LE mono at this sample rate")
	tone := flag.Bool("tone", false, "stream a synthetic silence/tone/silence pattern instead of a file")
	toneRate := flag.Int("tone-rate", 44100, "sample rate of the synthetic pattern")
	chunk := flag.Duration("chunk", 100*time.Millisecond, "audio duration per WebSocket message")
	fast := flag.Bool("fast", false, "send as fast as possible instead of in real time")
	retries := flag.Int("retries", 5, "attempts when the server is at its connection limit")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	pcm, rate, err := loadInput(flag.Arg(0), *rawRate, *tone, *toneRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livevad-client: %v\n", err)
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := backoff{attempts: *retries, initial: 500 * time.Millisecond, max: 10 * time.Second}
	err = b.retry(ctx, func() error {
		return stream(ctx, *url, pcm, rate, *chunk, !*fast)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		slog.Error("stream failed", "err", err)
		return 1
	}
	return 0
}

// loadInput returns the PCM bytes to send and their sample rate.
func loadInput(path string, rawRate int, tone bool, toneRate int) ([]byte, int, error) {
	if tone {
		var pcm []byte
		pcm = append(pcm, audio.Silence(toneRate, time.Second)...)
		pcm = append(pcm, audio.Tone(toneRate, 440, 0.5, 2*time.Second)...)
		pcm = append(pcm, audio.Silence(toneRate, 1500*time.Millisecond)...)
		return pcm, toneRate, nil
	}
	if path == "" {
		return nil, 0, errors.New("no input file given (or use -tone)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if rawRate > 0 {
		return data[:len(data)&^1], rawRate, nil
	}
	pcm, rate, err := parseWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return pcm, rate, nil
}

// stream sends pcm in chunk-sized binary messages, printing every event the
// server sends back, then closes normally and waits for the server to finish.
func stream(ctx context.Context, url string, pcm []byte, rate int, chunk time.Duration, paced bool) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.CloseNow()

	readDone := make(chan error, 1)
	go func() { readDone <- readEvents(ctx, conn) }()

	chunkBytes := max(2, int(float64(rate)*chunk.Seconds())*2)
	slog.Info("streaming", "url", url, "rate", rate,
		"duration", time.Duration(len(pcm)/2)*time.Second/time.Duration(rate),
		"chunk_bytes", chunkBytes,
	)

	var ticker *time.Ticker
	if paced {
		ticker = time.NewTicker(chunk)
		defer ticker.Stop()
	}
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			// The server may have rejected the stream right after the upgrade.
			conn.CloseNow()
			if rerr := <-readDone; errors.Is(rerr, errBusy) {
				return rerr
			}
			return fmt.Errorf("write: %w", err)
		}
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Close waits for the server's close frame, which it sends after the
	// last event.
	closeErr := conn.Close(websocket.StatusNormalClosure, "done")
	if err := <-readDone; err != nil {
		return err
	}
	if closeErr != nil && websocket.CloseStatus(closeErr) == -1 {
		slog.Debug("close", "err", closeErr)
	}
	return nil
}

// readEvents prints events until the server closes the connection.
func readEvents(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			case -1:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Our own close completed before the server's frame was read.
				slog.Debug("read ended", "err", err)
				return nil
			case websocket.StatusTryAgainLater:
				return fmt.Errorf("%w: %w", errBusy, err)
			default:
				return fmt.Errorf("server closed stream: %w", err)
			}
		}
		if typ != websocket.MessageText {
			slog.Warn("ignoring non-text message", "type", typ)
			continue
		}
		var ev types.SpeechEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("malformed event", "data", string(data), "err", err)
			continue
		}
		fmt.Printf("%-5s %v\n", ev.Kind, ev.Timestamp)
	}
}
