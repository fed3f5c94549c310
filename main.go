package main

import (
	"fmt"
	"os"

	"LoadMonitor/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "loadmon: %v\n", err)
		os.Exit(1)
	}
}
