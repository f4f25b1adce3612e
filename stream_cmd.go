package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/shabad/socket"
)

var streamCmd = &cobra.Command{
	Use:   "stream <file>",
	Short: "Stream an audio file to a running server",
	Long:  `Send an audio file to the server's audio stream in fixed-size fragments and print the transcripts it sends back.`,
	Args:  cobra.ExactArgs(1),
	Run:   runStream,
}

func init() {
	streamCmd.Flags().String("server", "", "Server base URL (default ws://localhost:<port>)")
	streamCmd.Flags().Int("chunk-size", 16*1024, "Fragment size in bytes")
	streamCmd.Flags().Duration("interval", 250*time.Millisecond, "Delay between fragments")
	streamCmd.Flags().Duration("wait", 10*time.Second, "How long to wait for further results once the audio is sent")
}

func runStream(cmd *cobra.Command, args []string) {
	mainLogger, sockLogger, _, _ := createLoggers(viper.GetString("log.level"))

	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	interval, _ := cmd.Flags().GetDuration("interval")
	wait, _ := cmd.Flags().GetDuration("wait")

	f, err := os.Open(args[0])
	if err != nil {
		mainLogger.Fatal("open audio file", "error", err)
	}
	defer f.Close()

	url := serverURL(cmd, "ws") + "/api/audio_stream"
	client, err := socket.Dial(context.Background(), url)
	if err != nil {
		mainLogger.Fatal("connect", "error", err)
	}
	defer client.Close()

	sockLogger.Info("connected", "url", url)

	finished := make(chan error, 1)
	events := make(chan struct{}, 1)
	go func() {
		finished <- printEvents(client, events)
	}()

	buf := make([]byte, chunkSize)
	fragments := 0
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if err := client.SendAudio(data); err != nil {
				mainLogger.Fatal("send fragment", "error", err)
			}
			fragments++
			time.Sleep(interval)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			mainLogger.Fatal("read audio file", "error", err)
		}
	}

	sockLogger.Info("sent", "fragments", fragments)
	if err := client.Stop(map[string]any{"fragments": fragments}); err != nil {
		mainLogger.Fatal("send stop", "error", err)
	}

	idle := time.NewTimer(wait)
	defer idle.Stop()
	for {
		select {
		case err := <-finished:
			if err != nil && !errors.Is(err, io.EOF) {
				mainLogger.Error("stream ended", "error", err)
			}
			return
		case <-events:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(wait)
		case <-idle.C:
			sockLogger.Info("no more results", "waited", wait)
			return
		}
	}
}

// printEvents prints server events until the connection ends or an
// error event arrives. Each event is signalled on seen without blocking.
func printEvents(client *socket.Client, seen chan<- struct{}) error {
	for {
		e, err := client.ReadEvent()
		if err != nil {
			return err
		}

		select {
		case seen <- struct{}{}:
		default:
		}

		switch e.Type {
		case socket.TypeTranscriptionUpdate:
			if e.IsFinal {
				fmt.Printf("> %s\n", e.Text)
			} else {
				fmt.Printf("  %s (%.2f)\n", e.Text, e.Stability)
			}
		case socket.TypeVerseUpdate:
			if e.Data != nil {
				fmt.Printf("  %s\n  %s\n  %s\n", e.Data.Gurmukhi, e.Data.Meaning, e.Data.SourcePage)
			}
		case socket.TypeError:
			return fmt.Errorf("server: %s", e.Message)
		}
	}
}
