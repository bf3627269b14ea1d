// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// playCommand opens the interactive player over the given files
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Open the interactive player, ingesting the given files",
		ArgsUsage: "[files...]",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Ingest worker count (overrides config)",
			},
		},
		Action: r.Play,
	}
}

// watchCommand runs headless watch-folder ingestion
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch library directories and log ingested tracks",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringSliceFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Directory to watch (repeatable, overrides config)",
			},
		},
		Action: r.Watch,
	}
}

// probeCommand validates files and prints their metadata
func probeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Validate files and print track metadata",
		ArgsUsage: "<files...>",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text or csv",
				Value:   "text",
			},
		},
		Action: r.Probe,
	}
}

// initCommand writes an example config file
func initCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Write an example config.toml to the current directory",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Init,
	}
}
