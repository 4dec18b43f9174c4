package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/floorscore/floorscore/server/internal/cli"
)

var CLI struct {
	Config string `help:"floorscore-server config file to read scoring parameters from." type:"path" short:"c"`

	Score  cli.ScoreCmd  `cmd:"" help:"Score one shift."`
	Batch  cli.BatchCmd  `cmd:"" help:"Score every row of a CSV file."`
	Params cli.ParamsCmd `cmd:"" help:"Print the effective scoring parameters."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("effscore"),
		kong.Description("Offline worker efficiency scoring"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	profiles, err := cli.LoadProfiles(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = ctx.Run(&cli.Context{Out: os.Stdout, Err: os.Stderr, Profiles: profiles})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
