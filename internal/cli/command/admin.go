package command

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sightingdb-go/internal/cli/output"
	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/storage"
	"github.com/yndnr/sightingdb-go/internal/storage/snapshot"
	"github.com/yndnr/sightingdb-go/pkg/token"
)

// ACLCommand returns the acl subcommand group. Every subcommand needs a
// key with write access to _config.
func ACLCommand() *cli.Command {
	return &cli.Command{
		Name:  "acl",
		Usage: "Manage API keys and their grants",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List API keys",
				Action: aclList,
			},
			{
				Name:      "show",
				Usage:     "Show the grants of a key",
				ArgsUsage: "KEY",
				Action:    aclShow,
			},
			{
				Name:      "grant",
				Usage:     "Let a key read or write below a namespace prefix",
				ArgsUsage: "KEY read|write [PREFIX]",
				Action:    aclGrant,
			},
			{
				Name:      "revoke",
				Usage:     "Remove a key and all its grants",
				ArgsUsage: "KEY",
				Action:    aclRevoke,
			},
			{
				Name:      "new",
				Usage:     "Generate a key and grant it access below PREFIX",
				ArgsUsage: "read|write [PREFIX]",
				Action:    aclNew,
			},
		},
	}
}

func configure(c *cli.Context, section string, q url.Values, target any) error {
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	return get(c.Context, rt.client, "/c/"+section, q, target)
}

func aclList(c *cli.Context) error {
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	var res keyList
	if err := configure(c, "acl", nil, &res); err != nil {
		return err
	}
	return rt.print(res)
}

func aclShow(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	var res grants
	if err := configure(c, "acl", url.Values{"key": {c.Args().First()}}, &res); err != nil {
		return err
	}
	return rt.print(res)
}

func parseMode(s string) (domain.AccessMode, error) {
	mode := domain.AccessMode(s)
	if !mode.Valid() {
		return "", fmt.Errorf("unknown access mode %q (want read or write)", s)
	}
	return mode, nil
}

func grant(c *cli.Context, key string, mode domain.AccessMode, prefix string) error {
	q := url.Values{"key": {key}, "grant": {string(mode)}, "prefix": {prefix}}
	return configure(c, "acl", q, nil)
}

func aclGrant(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	mode, err := parseMode(c.Args().Get(1))
	if err != nil {
		return err
	}
	if err := grant(c, c.Args().First(), mode, c.Args().Get(2)); err != nil {
		return err
	}
	return rt.print(message{Message: "ok"})
}

func aclRevoke(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	var res message
	if err := configure(c, "acl", url.Values{"revoke": {c.Args().First()}}, &res); err != nil {
		return err
	}
	return rt.print(res)
}

func aclNew(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	mode, err := parseMode(c.Args().First())
	if err != nil {
		return err
	}
	key, err := token.NewAPIKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	prefix := domain.NormalizeNamespace(c.Args().Get(1))
	if err := grant(c, key, mode, prefix); err != nil {
		return err
	}
	return rt.print(newKey{Key: key, Mode: string(mode), Prefix: "/" + prefix})
}

// SnapshotCommand returns the snapshot command.
func SnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Take a snapshot on the server now",
		Action: func(c *cli.Context) error {
			rt, err := runtimeOf(c)
			if err != nil {
				return err
			}
			spin := output.NewSpinner(rt.errOut, "taking snapshot")
			spin.Start()
			var info snapshot.Info
			if err := configure(c, "snapshot", nil, &info); err != nil {
				spin.Stop("")
				return err
			}
			spin.Stop("")
			return rt.print(info)
		},
	}
}

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show engine statistics",
		Action: func(c *cli.Context) error {
			rt, err := runtimeOf(c)
			if err != nil {
				return err
			}
			var st storage.Stats
			if err := configure(c, "stats", nil, &st); err != nil {
				return err
			}
			return rt.print(st)
		},
	}
}
