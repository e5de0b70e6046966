//go:build !linux

package main

import (
	"context"
	"fmt"
	"os"
)

// readInputEventsMulti falls back to one blocking reader per device where
// epoll is unavailable. The readers exit when their file is closed.
func readInputEventsMulti(ctx context.Context, files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}
	for _, f := range files {
		go readInputEvents(f, events, readErr)
	}
	<-ctx.Done()
}
