package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sightingdb-go/internal/cli/config"
	"github.com/yndnr/sightingdb-go/internal/infra/buildinfo"
)

// InfoCommand returns the info command.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the server implementation and version",
		Action: func(c *cli.Context) error {
			rt, err := runtimeOf(c)
			if err != nil {
				return err
			}
			var id buildinfo.Identity
			if err := get(c.Context, rt.client, "/i", nil, &id); err != nil {
				return err
			}
			return rt.print(id)
		},
	}
}

// HealthCommand returns the health command. A read-only server is
// reported as an error.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			rt, err := runtimeOf(c)
			if err != nil {
				return err
			}
			var res struct {
				Status string `json:"status"`
				Time   string `json:"time"`
			}
			if err := get(c.Context, rt.client, "/health", nil, &res); err != nil {
				return fmt.Errorf("server unhealthy: %w", err)
			}
			if err := rt.print(res); err != nil {
				return err
			}
			if res.Status != "healthy" {
				return fmt.Errorf("server is %s", res.Status)
			}
			return nil
		},
	}
}

// ConfigCommand returns the config subcommand group for the local CLI
// settings file.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the CLI settings file",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective settings",
				Action: func(c *cli.Context) error {
					rt, err := runtimeOf(c)
					if err != nil {
						return err
					}
					return rt.print(rt.cfg.Redacted())
				},
			},
			{
				Name:      "set",
				Usage:     "Set a key in the settings file",
				ArgsUsage: "server|api_key|output|timeout|ca_cert|insecure VALUE",
				Action:    configSet,
			},
			{
				Name:  "path",
				Usage: "Print the settings file path",
				Action: func(c *cli.Context) error {
					rt, err := runtimeOf(c)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(rt.out, rt.cfgPath)
					return err
				},
			},
		},
	}
}

// configSet edits the file itself, not the flag-merged view.
func configSet(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	cfg, err := config.ReadFile(rt.cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Set(c.Args().Get(0), c.Args().Get(1)); err != nil {
		return err
	}
	if err := config.Save(cfg, rt.cfgPath); err != nil {
		return err
	}
	return rt.print(message{Message: "ok"})
}
