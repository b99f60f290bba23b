//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// main hands the main thread to the hotkey event loop, which macOS requires.
func main() {
	mainthread.Init(run)
}
