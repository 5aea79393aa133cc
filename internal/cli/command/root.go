package command

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sightingdb-go/internal/cli/config"
	"github.com/yndnr/sightingdb-go/internal/cli/connection"
	"github.com/yndnr/sightingdb-go/internal/cli/output"
	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/infra/buildinfo"
	"github.com/yndnr/sightingdb-go/internal/infra/tlsroots"
)

const metaRuntime = "runtime"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "sightingdb-cli",
		Usage:                "talk to a SightingDB server",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			WriteCommand(),
			ReadCommand(),
			ListCommand(),
			DeleteCommand(),
			ImportCommand(),
			ACLCommand(),
			SnapshotCommand(),
			StatsCommand(),
			InfoCommand(),
			HealthCommand(),
			ConfigCommand(),
		},
		Before: setup,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI settings file",
			Value:   config.DefaultPath(),
			EnvVars: []string{"SIGHTINGDB_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "server address (host:port or URL)",
			EnvVars: []string{"SIGHTINGDB_SERVER"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Aliases: []string{"k"},
			Usage:   "API key sent in the Authorization header",
			EnvVars: []string{"SIGHTINGDB_APIKEY"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, jsonl, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show extra columns",
		},
		&cli.BoolFlag{
			Name:  "no-headers",
			Usage: "omit table headers",
		},
		&cli.StringFlag{
			Name:  "timeout",
			Usage: "request timeout, e.g. 10s",
		},
		&cli.StringFlag{
			Name:  "ca-cert",
			Usage: "PEM file or directory of CA certificates to trust",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "skip TLS certificate verification",
		},
	}
}

// runtime is what one invocation needs: settings, a client and where to
// print.
type runtime struct {
	cfg       *config.CLIConfig
	cfgPath   string
	client    *connection.HTTPClient
	formatter output.Formatter
	out       io.Writer
	errOut    io.Writer
}

// setup resolves settings (file, env, then flags) and builds the client.
func setup(c *cli.Context) error {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	overrides := map[string]string{
		"server":  "server",
		"api-key": "api_key",
		"output":  "output",
		"timeout": "timeout",
		"ca-cert": "ca_cert",
	}
	for flag, key := range overrides {
		if c.IsSet(flag) {
			if err := cfg.Set(key, c.String(flag)); err != nil {
				return fmt.Errorf("--%s: %w", flag, err)
			}
		}
	}
	if c.IsSet("insecure") {
		cfg.Insecure = c.Bool("insecure")
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return err
	}
	tlsCfg, err := tlsroots.ClientConfig(cfg.CACert, cfg.Insecure)
	if err != nil {
		return err
	}
	formatter := output.NewFormatter(format, c.Bool("wide"))
	if tf, ok := formatter.(*output.TableFormatter); ok {
		tf.NoHeaders = c.Bool("no-headers")
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[metaRuntime] = &runtime{
		cfg:       cfg,
		cfgPath:   path,
		client:    connection.NewHTTPClient(cfg.Server, cfg.APIKey, connection.Options{Timeout: timeout, TLSConfig: tlsCfg}),
		formatter: formatter,
		out:       c.App.Writer,
		errOut:    c.App.ErrWriter,
	}
	return nil
}

func runtimeOf(c *cli.Context) (*runtime, error) {
	rt, ok := c.App.Metadata[metaRuntime].(*runtime)
	if !ok {
		return nil, errors.New("cli not initialized")
	}
	return rt, nil
}

func (rt *runtime) print(v any) error {
	return rt.formatter.Format(rt.out, v)
}

// namespacePath escapes each segment of ns for use after a route prefix.
func namespacePath(route, ns string) (string, error) {
	ns = domain.NormalizeNamespace(ns)
	if err := domain.ValidateNamespace(ns); err != nil {
		return "", err
	}
	segs := strings.Split(ns, domain.Separator)
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return route + strings.Join(segs, domain.Separator), nil
}

// encodeValue turns a command-line value into its wire form. With raw set
// the argument is already base64url.
func encodeValue(arg string, raw bool) (string, error) {
	if !raw {
		return domain.EncodeValue([]byte(arg)), nil
	}
	if _, err := domain.DecodeValue(arg); err != nil {
		return "", err
	}
	return arg, nil
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() < n {
		return fmt.Errorf("%s: expected arguments %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return nil
}
