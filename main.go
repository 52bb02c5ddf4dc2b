package main

import (
	"log"

	"gate-system/cmd"
	_ "gate-system/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
