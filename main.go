package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"rmi/commands"
	"rmi/config"
)

func registerGlobalFlags(fset *flag.FlagSet) {
	flag.VisitAll(func(f *flag.Flag) {
		fset.Var(f.Value, f.Name, f.Usage)
	})
}

// loadConfig reads path, or returns the defaults when no path was given.
func loadConfig(path, logLevel string) *config.Config {
	cfg := config.NewEmptyConfig(path)
	if path != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(path); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := commands.SetupLogging(cfg); err != nil {
		log.Fatalf("Invalid log settings: %v", err)
	}
	return cfg
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <init|serve|stdio|call|eval> [flags] [args]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "  init  -config FILE          write a default config")
	fmt.Fprintln(os.Stderr, "  serve                       accept TCP peers")
	fmt.Fprintln(os.Stderr, "  stdio                       serve one peer over stdin/stdout")
	fmt.Fprintln(os.Stderr, "  call  NAME [ARG...]         call a function on a server")
	fmt.Fprintln(os.Stderr, "  eval  EXPR [ARG...]         evaluate an expression on a server")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configFile := flag.String("config", "", "Path to config file (.json, .yaml)")
	logLevel := flag.String("loglevel", "", "Log level, overrides the config")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	registerGlobalFlags(initCmd)

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := serveCmd.String("listen", "", "Address to listen on, overrides the config")
	registerGlobalFlags(serveCmd)

	stdioCmd := flag.NewFlagSet("stdio", flag.ExitOnError)
	registerGlobalFlags(stdioCmd)

	callCmd := flag.NewFlagSet("call", flag.ExitOnError)
	dial := callCmd.String("dial", "", "Server address, overrides the config")
	registerGlobalFlags(callCmd)

	evalCmd := flag.NewFlagSet("eval", flag.ExitOnError)
	evalCmd.Var(callCmd.Lookup("dial").Value, "dial", "Server address, overrides the config")
	registerGlobalFlags(evalCmd)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "init":
		initCmd.Parse(args)
		if *configFile == "" {
			log.Fatal("Config file not specified")
		}
		err = commands.RunInit(ctx, loadConfig("", *logLevel).WithFile(*configFile))
	case "serve":
		serveCmd.Parse(args)
		cfg := loadConfig(*configFile, *logLevel)
		if *listen != "" {
			cfg.Network.Listen = *listen
		}
		err = commands.RunServe(ctx, cfg)
	case "stdio":
		stdioCmd.Parse(args)
		err = commands.RunStdio(ctx, loadConfig(*configFile, *logLevel))
	case "call", "eval":
		fset := callCmd
		if cmd == "eval" {
			fset = evalCmd
		}
		fset.Parse(args)
		if fset.NArg() < 1 {
			usage()
			os.Exit(2)
		}
		cfg := loadConfig(*configFile, *logLevel)
		if *dial != "" {
			cfg.Network.Dial = *dial
		}
		if cmd == "call" {
			err = commands.RunCall(ctx, cfg, os.Stdout, fset.Arg(0), fset.Args()[1:])
		} else {
			err = commands.RunEval(ctx, cfg, os.Stdout, fset.Arg(0), fset.Args()[1:])
		}
	default:
		usage()
		log.Fatalf("Invalid subcommand '%s'", cmd)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}
