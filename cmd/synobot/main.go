package main

import (
	"log"

	"github.com/m3rciful/synobot/core/cmd"
)

func main() {
	if err := cmd.Run(cmd.Options{DefaultConfigPath: "config.yaml"}); err != nil {
		log.Fatal(err)
	}
}
