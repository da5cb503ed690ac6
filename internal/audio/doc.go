// Package audio provides microphone capture for the voice command relay.
// It implements callback-driven PCM capture into a bounded thread-safe queue
// so the input device never blocks on a slow network consumer, and exposes the
// captured chunks as a blocking, coalescing read stream.
package audio
