//go:build !unix

package main

import "os"

// resumeSignals never fires on platforms without SIGUSR1.
func resumeSignals() chan os.Signal {
	return make(chan os.Signal, 1)
}
