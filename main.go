// The main package for the compositegw executable.
package main

import (
	"github.com/paleoapi/compositegw/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
