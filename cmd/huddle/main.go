package main

import (
	"github.com/janhae4/DATN-sub006/internal/cli"
	"github.com/janhae4/DATN-sub006/internal/logging"
)

func main() {
	// Logs would tear through the live room view; keep them quiet unless
	// LOG_LEVEL asks otherwise.
	logging.InitQuiet()
	cli.Execute()
}
