// Command userdirctl is a terminal client for the user directory. It drives
// the same service as the HTTP API in-process: list, search, sort, filter
// and page through users, show one user and manage favorites.
package main

import (
	"log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
