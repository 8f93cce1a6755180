package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/raskol/raskol/internal/config"
	"github.com/raskol/raskol/internal/identity"
	"github.com/raskol/raskol/internal/raskol"
)

func runJWTCmd(args []string) {
	fs := flag.NewFlagSet("jwt", flag.ExitOnError)
	configPath := fs.String("config", "configs/raskol.toml", "path to config file")
	role := fs.String("role", string(raskol.RoleUser), "role to embed (USER, HACKER, ADMIN)")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "usage: raskol jwt [-config path] [-role ROLE] <uid> <ttl_seconds>")
		os.Exit(1)
	}
	uid := rest[0]
	ttlSeconds, err := strconv.ParseInt(rest[1], 10, 64)
	if err != nil || ttlSeconds <= 0 {
		fmt.Fprintf(os.Stderr, "error: ttl_seconds must be a positive integer\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	svc, err := identity.New(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	tok, err := svc.Mint(uid, time.Duration(ttlSeconds)*time.Second, raskol.Role(*role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(tok)
}
