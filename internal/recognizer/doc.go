// Package recognizer implements the client for the streaming speech
// recognition service. It handles the websocket configuration handshake,
// forwards binary PCM frames, and decodes incremental transcript results,
// filtering malformed responses before they reach downstream consumers.
package recognizer
