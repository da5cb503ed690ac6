// chiplisten is a diagnostic subscriber for the command broadcast. It prints
// the most recent command message once per second, dropping anything older:
// only the latest state matters when eyeballing the relay.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

const defaultEndpoint = "ws://127.0.0.1:7781/commands"

func main() {
	endpoint := flag.String("endpoint", defaultEndpoint, "Command broadcast websocket endpoint")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	conn, _, err := websocket.DefaultDialer.Dial(*endpoint, nil)
	if err != nil {
		logger.Error("Failed to connect to relay",
			slog.String("endpoint", *endpoint),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer conn.Close()

	logger.Info("Listening for commands", slog.String("endpoint", *endpoint))

	var mu sync.Mutex
	var latest []byte
	readErr := make(chan error, 1)

	// Keep only the newest message; the printer below samples it.
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			mu.Lock()
			latest = message
			mu.Unlock()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mu.Lock()
			message := latest
			mu.Unlock()

			if message == nil {
				fmt.Println("no message received yet")
			} else {
				fmt.Println(string(message))
			}

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("Relay closed the connection")
				return
			}
			logger.Error("Connection lost", slog.String("error", err.Error()))
			os.Exit(1)

		case sig := <-sigChan:
			logger.Info("Exiting", slog.String("signal", sig.String()))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
