package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/voxaid/voxaid/cmd/voxaid"
	"github.com/voxaid/voxaid/internal/config"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	var (
		c   *config.Config
		err error
	)
	if path := configFlagValue(); path != "" {
		c, err = config.LoadFrom(path)
	} else {
		c, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cli.SetupRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configFlagValue peeks at --config before cobra parses flags, because the
// config has to load first to build the command tree's defaults.
func configFlagValue() string {
	args := os.Args[1:]
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if len(arg) > len("--config=") && arg[:len("--config=")] == "--config=" {
			return arg[len("--config="):]
		}
	}
	return ""
}
