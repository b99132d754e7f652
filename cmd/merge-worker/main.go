package main

import (
	"os"

	"github.com/juriscope/juriscope-timeline/mergeworker"
)

func main() {
	if err := mergeworker.Run(); err != nil {
		os.Exit(1)
	}
}
