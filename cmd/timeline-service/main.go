package main

import (
	"os"

	"github.com/juriscope/juriscope-timeline/timelineservice"
)

func main() {
	if err := timelineservice.Run(); err != nil {
		os.Exit(1)
	}
}
