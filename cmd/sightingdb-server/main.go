package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sightingdb-go/internal/infra/buildinfo"
	"github.com/yndnr/sightingdb-go/pkg/token"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "sightingdb-server",
		Usage:   "count sightings of values in namespaces",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (yaml or toml)",
				EnvVars: []string{"SIGHTINGDB_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "apikey",
				Aliases: []string{"k"},
				Usage:   "bootstrap API key with full access",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "storage directory",
			},
			&cli.BoolFlag{
				Name:  "gen-key",
				Usage: "print a fresh API key and exit",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("gen-key") {
				key, err := token.NewAPIKey()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.App.Writer, key)
				return err
			}
			return serve(c)
		},
	}
}

// flagOverrides maps set flags onto configuration keys.
func flagOverrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"apikey":    "auth.bootstrap_key",
		"log-level": "log.level",
		"listen":    "server.http.address",
		"data-dir":  "storage.data_dir",
	}
	out := make(map[string]any)
	for flag, key := range keys {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	return out
}
