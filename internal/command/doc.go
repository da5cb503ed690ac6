// Package command converts transcript events into robot control messages.
// It matches transcripts against a fixed phrase vocabulary, detects the
// quit/exit phrase, and applies repeat suppression so a sustained utterance
// cannot flood the control channel with duplicate motion commands.
package command
