// Raskol is a multi-tenant reverse proxy that authenticates callers with
// JWT bearer tokens and admits requests against durable per-user rate and
// quota limits before forwarding to a single fixed upstream.
package main

import (
	"flag"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "server":
		runServerCmd(os.Args[2:])
	case "jwt":
		runJWTCmd(os.Args[2:])
	case "-version", "--version":
		fmt.Println("raskol", version)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: raskol <command> [arguments]")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  server                  run the proxy")
	fmt.Fprintln(os.Stderr, "  jwt <uid> <ttl_seconds> mint a signed bearer token")
}

func runServerCmd(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "configs/raskol.toml", "path to config file")
	fs.Parse(args)

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
