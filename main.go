package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bitatlas/trustgate/internal/bootstrap"
	"github.com/bitatlas/trustgate/internal/config"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("trustgate %s\n", version)
		os.Exit(0)
	}

	cfg := config.Load()

	if err := bootstrap.Run(cfg); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
}
