package config

import (
	"flag"
)

const defaultConfigPath = "config.yaml"

// Flags are the command line options of the binary.
type Flags struct {
	ConfigPath string
	Setup      bool
	Debug      bool
}

// GetFlags parses the process command line.
func GetFlags() Flags {
	return parseFlags(flag.CommandLine, nil)
}

func parseFlags(fs *flag.FlagSet, args []string) Flags {
	var f Flags
	fs.StringVar(&f.ConfigPath, "config", defaultConfigPath, "path to yaml config")
	fs.BoolVar(&f.Setup, "setup", false, "run the interactive setup wizard and write the config")
	fs.BoolVar(&f.Debug, "debug", false, "enable development logging")

	if args == nil {
		flag.Parse()
	} else {
		_ = fs.Parse(args)
	}

	return f
}
