package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lherron/partymerge/internal/cli"
)

func main() {
	addr := flag.String("addr", "", "Listen address (default from config, 127.0.0.1:8765)")
	token := flag.String("token", "", "Bearer token required on every request")
	dbPath := flag.String("db", "", "Database path override (defaults to config)")
	flag.Parse()

	opts := cli.DaemonOptions{
		Addr:   *addr,
		Token:  *token,
		DBPath: *dbPath,
	}

	if err := cli.ServeDaemon(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
