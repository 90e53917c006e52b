// Command b2cli is a minimal example binary exercising the core engine's
// upload/download/sync surface — outside the core per spec.md §1's
// non-goal on a full CLI, but carried to give the CLI-facing dependencies
// (cobra, go-isatty, go-humanize) a concrete home, grounded on the
// teacher's root.go/main.go split.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
