package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/lox/ito/cmd/ito/shared"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Config   string           `short:"c" type:"path" default:"ito.hcl" env:"ITO_CONFIG" help:"HCL config file (ignored if missing)"`
	NoColor  bool             `help:"Disable colored output"`
	Serve    ServeCmd         `cmd:"" help:"Run the websocket game server"`
	Play     PlayCmd          `cmd:"" help:"Play a local game in the terminal"`
	Simulate SimulateCmd      `cmd:"" help:"Run bot games and report statistics"`
	Topics   TopicsCmd        `cmd:"" help:"List the topic catalog"`
	Build    VersionCmd       `cmd:"version" help:"Print the version"`
}

// VersionCmd prints the build version
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("ito", version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ito"),
		kong.Description("Rules engine and server for the cooperative card game ito"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	if cli.NoColor {
		shared.DisableColor()
	}
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
