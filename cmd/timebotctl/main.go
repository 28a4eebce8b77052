package main

import (
	"fmt"
	"os"

	"timebot/internal/cli"
	"timebot/internal/config"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	root := cli.NewRootCommand(cli.Defaults{
		DBPath: cfg.SQLiteDBPath,
		UserID: cfg.CLIUserID,
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
