//go:build !linux

package main

import (
	"context"
	"os"
)

// readDevices runs one blocking reader per device. Readers exit when runInput
// closes the files.
func readDevices(ctx context.Context, files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	for _, f := range files {
		go readInputEvents(f, events, readErr)
	}
	<-ctx.Done()
}
