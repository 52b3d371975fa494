// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package tracer

import (
	"fmt"
	"io"
	"sync"
)

// MaxMessages bounds the trace; the oldest messages are dropped first.
const MaxMessages = 4096

var (
	mu            sync.Mutex
	traceMessages []string
	// head is the index of the oldest message once the log is full.
	head int
)

// Log just adds a message to the trace log.
func Log(msg string) {
	mu.Lock()
	defer mu.Unlock()
	if len(traceMessages) < MaxMessages {
		traceMessages = append(traceMessages, msg)
		return
	}
	traceMessages[head] = msg
	head = (head + 1) % MaxMessages
}

// ordered returns the messages oldest first. Callers hold mu.
func ordered() []string {
	out := make([]string, 0, len(traceMessages))
	out = append(out, traceMessages[head:]...)
	return append(out, traceMessages[:head]...)
}

// Messages returns a copy of the accumulated trace log.
func Messages() []string {
	mu.Lock()
	defer mu.Unlock()
	return ordered()
}

// Reset discards the trace log.
func Reset() {
	mu.Lock()
	traceMessages, head = nil, 0
	mu.Unlock()
}

// Flush writes the accumulated trace log to w and resets it.
func Flush(w io.Writer) error {
	mu.Lock()
	msgs := ordered()
	traceMessages, head = nil, 0
	mu.Unlock()
	for _, msg := range msgs {
		if _, err := fmt.Fprintln(w, msg); err != nil {
			return err
		}
	}
	return nil
}
