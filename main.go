// Command rmsctl is the administrative entry point for the RMS
// provenance kernel. Pipe registration and execution happen in-process
// from Go code that imports package rms directly; this binary is for
// operating on an already-populated Catalog Store from a shell.
package main

import (
	"os"

	"rmscore.evalgo.org/cli"
)

func main() {
	os.Exit(cli.Execute())
}
