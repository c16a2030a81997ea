package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config   string `short:"c" long:"config" description:"JSON configuration file" env:"FOLLOWER_CONFIG"`
	Preset   string `short:"p" long:"preset" default:"default" choice:"default" choice:"cautious" choice:"agile" description:"Base configuration"`
	LogLevel string `short:"l" long:"log-level" default:"info" env:"FOLLOWER_LOG_LEVEL" description:"debug, info, warn or error"`

	Run   RunCommand   `command:"run" description:"Follow a person with the real robot"`
	Sim   SimCommand   `command:"sim" alias:"simulate" description:"Run the follower against a simulated scene"`
	Ports PortsCommand `command:"ports" description:"List serial ports"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Follower - person-following robot controller"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
