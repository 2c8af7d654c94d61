// Command box runs a command inside a Docker container dedicated to the
// configured directory that contains the current working directory.
//
// Usage:
//
//	box [flags] <command> [args...]
//	box kill
package main

import (
	"box/internal/shim"
	"context"
	"os"
)

func main() {
	ctx, stop := shim.NotifyContext(context.Background())
	code := execute(ctx, os.Args[1:], shim.Run)
	stop()
	os.Exit(code)
}
