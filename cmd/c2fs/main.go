package main

import (
	"log"

	"c2fs/cmd/c2fs/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
