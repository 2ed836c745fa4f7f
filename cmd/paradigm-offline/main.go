// Command paradigm-offline runs the offline caching and delivery layer as a
// local proxy in front of the Paradigm Services origin.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
