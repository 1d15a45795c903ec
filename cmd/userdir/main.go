// Command userdir serves the user directory API: a paginated, searchable,
// sortable and filterable view over the remote user collection plus a
// persisted favorites set.
package main

import (
	"log"

	"github.com/patric-chuzhbe/userdir/internal/app"
	"github.com/patric-chuzhbe/userdir/internal/logger"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		log.Fatal(err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		logger.Log.Errorln("userdir stopped with error", "error", err)
	}
}
