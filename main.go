// file: main.go
// version: 1.0.0
// guid: 0a4c8e2b-6d1f-4b7a-9c3e-2e8a4c0d6f1b

package main

import (
	"fmt"
	"os"

	"github.com/jdfalk/coverfetch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
