// Package main is the entry point for the logwarden server and CLI.
package main

import (
	"fmt"
	"os"

	"logwarden/bootstrap"
	"logwarden/cmd"
)

func run() error {
	configPath := os.Getenv("LOGWARDEN_CONFIG")

	app, err := bootstrap.NewApp(configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Start()
}

func main() {
	// `logwarden logs ...` runs the CLI against the local database;
	// everything else starts the server.
	if len(os.Args) > 1 && os.Args[1] == "logs" {
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		logsCmd := cmd.NewLogsCmd()
		if err := logsCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
