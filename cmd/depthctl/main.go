// depthctl uploads images to a depth studio server from the command line.
package main

import (
	"os"

	"depth-studio-backend/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
