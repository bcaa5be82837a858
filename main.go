package main

import (
	"log"

	"trivia-kiosk/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
