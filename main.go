// ./main.go
package main

import (
	"github.com/avelichko7/textlens/cmd"
)

// main is the entry point for the textlens host.
func main() {
	// Execute the root command defined in the cmd package.
	// It handles command-line parsing, configuration, and execution.
	cmd.Execute()
}
