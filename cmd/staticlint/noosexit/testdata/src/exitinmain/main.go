package main

import (
	"os"
	system "os"
)

func helper() {
	os.Exit(3)
}

func main() {
	defer helper()

	go func() {
		os.Exit(2)
	}()

	if len(os.Args) > 5 {
		system.Exit(1) // want "avoid using os.Exit in main.main"
	}

	os.Exit(0) // want "avoid using os.Exit in main.main"
}
