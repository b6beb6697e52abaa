//go:build unix

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// resumeSignals delivers SIGUSR1, used to ask a running watch to resync.
func resumeSignals() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGUSR1)
	return ch
}
