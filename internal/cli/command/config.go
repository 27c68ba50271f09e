package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tabvault/tabvault-go/internal/cli/output"
	"github.com/tabvault/tabvault-go/internal/infra/confloader"
	srvconfig "github.com/tabvault/tabvault-go/internal/server/config"
)

// ConfigCommand returns the config subcommand group. These commands
// work on server configuration files locally; none of them talk to a
// running server.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Work with server configuration files",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Render the effective server configuration",
				ArgsUsage: "[FILE]",
				Description: "Merges the file (when given), TABVAULT_ environment\n" +
					"variables, and the defaults, then prints the result the way\n" +
					"the server would see it.",
				Action: configShow,
			},
			{
				Name:      "init",
				Usage:     "Write a starter server configuration",
				ArgsUsage: "[FILE]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "overwrite an existing file",
					},
				},
				Action: configInit,
			},
			{
				Name:      "validate",
				Usage:     "Validate a server configuration file",
				ArgsUsage: "FILE",
				Description: "Checks the file against the server schema and verifies\n" +
					"the storage directory is usable, creating it if needed.",
				Action: configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	cfg := srvconfig.Default()

	var opts []confloader.Option
	if path := c.Args().First(); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return err
	}

	// Config files are YAML, so that is the default rendering.
	flags := ParseGlobalFlags(c)
	if output.Format(flags.Output) == output.FormatJSON {
		return (&output.JSONFormatter{}).Format(c.App.Writer, cfg)
	}
	return (&output.YAMLFormatter{}).Format(c.App.Writer, cfg)
}

func configInit(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = "tabvault.yaml"
	}
	if path == "-" {
		fmt.Fprint(c.App.Writer, configTemplate)
		return nil
	}

	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, pass --force to overwrite", path)
		}
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

func configValidate(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("configuration file required")
	}

	cfg := srvconfig.Default()
	loader := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := loader.Load(cfg); err != nil {
		return err
	}
	if err := srvconfig.Verify(cfg); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s is valid.\n", path)
	return nil
}

const configTemplate = `# TabVault server configuration.

server:
  # Listen address. Loopback by default; binding wider is a deliberate
  # operator choice.
  http_address: "127.0.0.1:7501"
  shutdown_timeout: 10s
  # Sustained requests per second across all clients. Zero disables
  # rate limiting.
  rate_limit: 50
  rate_burst: 100
  # Set both to serve TLS. Rotated files are picked up without a
  # restart.
  # tls_cert_file: /etc/tabvault/tls/cert.pem
  # tls_key_file: /etc/tabvault/tls/key.pem

storage:
  # Backend: memory, badger, or sqlite.
  backend: badger
  data_dir: /var/lib/tabvault/data
  # At-rest encryption (badger only). The file holds 32 raw bytes or
  # 64 hex characters.
  # encryption_key_file: /etc/tabvault/at-rest.key

engine:
  # Rows per chunk when a dataset exceeds the persistence cap.
  chunk_size: 10000
  memory_check_interval: 3
  gc_interval: 5
  restore_delay: 10ms
  restore_max_delay: 50ms

limits:
  # Capacity profile: auto, low, medium, or high. Auto detects from
  # host memory and CPU count.
  profile: auto
  # max_sessions: 5

log:
  # Levels: debug, info, warn, error.
  level: info
  # Formats: json, text.
  format: json
`
