// Test recognition server: a fake streaming speech service for developing
// the relay without credentials. It accepts the websocket handshake, swallows
// audio frames and emits a canned command phrase every few seconds, preceded
// by a couple of interim partials.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type streamingResult struct {
	Results []resultBody `json:"results"`
}

type resultBody struct {
	Alternatives []alternative `json:"alternatives"`
	Stability    float64       `json:"stability"`
	IsFinal      bool          `json:"is_final"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

var phrases = []string{
	"go short", "go medium", "go long",
	"go slow", "go fast", "go run",
	"go manual", "go stop", "go auto",
	"stop", "halt",
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// First frame is the configuration handshake
	var handshake map[string]interface{}
	if err := conn.ReadJSON(&handshake); err != nil {
		log.Printf("Bad handshake: %v", err)
		return
	}
	log.Printf("Stream opened from %s, config: %v", r.RemoteAddr, handshake)

	// Swallow audio frames; we only care that they keep coming
	audioBytes := make(chan int, 64)
	go func() {
		defer close(audioBytes)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			audioBytes <- len(message)
		}
	}()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	received := 0
	phrase := 0
	for {
		select {
		case n, ok := <-audioBytes:
			if !ok {
				log.Printf("Stream from %s ended after %d audio bytes", r.RemoteAddr, received)
				return
			}
			received += n

		case <-ticker.C:
			text := phrases[phrase%len(phrases)]
			phrase++

			// A couple of interim partials, then the final
			frames := []resultBody{
				{Alternatives: []alternative{{Transcript: text[:2]}}, Stability: 0.0},
				{Alternatives: []alternative{{Transcript: text}}, Stability: 0.9},
				{Alternatives: []alternative{{Transcript: text, Confidence: 0.95}}, IsFinal: true},
			}

			for _, frame := range frames {
				data, _ := json.Marshal(streamingResult{Results: []resultBody{frame}})
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("Write failed: %v", err)
					return
				}
			}

			log.Printf("Emitted %q (%d audio bytes so far)", text, received)
		}
	}
}

func main() {
	http.HandleFunc("/v1/stream", streamHandler)

	port := ":9000"
	log.Printf("Test recognition server starting on %s", port)
	log.Printf("Point the relay at: ws://localhost%s/v1/stream", port)

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
