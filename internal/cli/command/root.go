package command

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/tabvault/tabvault-go/internal/cli/config"
	"github.com/tabvault/tabvault-go/internal/cli/connection"
	"github.com/tabvault/tabvault-go/internal/cli/output"
	"github.com/tabvault/tabvault-go/internal/infra/buildinfo"
	"github.com/tabvault/tabvault-go/internal/infra/tlsroots"
)

// App builds the CLI application. The preference file seeds the flag
// defaults; environment variables and explicit flags override it.
func App() *cli.App {
	prefs, err := cliconfig.Load("")
	if err != nil {
		PrintError("ignoring preference file: %v", err)
	}

	return &cli.App{
		Name:    "tabvault-cli",
		Usage:   "TabVault session management tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(prefs),
		Commands: []*cli.Command{
			SessionCommand(),
			SystemCommand(),
			ConfigCommand(),
		},
	}
}

func globalFlags(prefs *cliconfig.CLIConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "server address (host:port or URL)",
			EnvVars: []string{"TABVAULT_CLI_SERVER"},
			Value:   prefs.Server,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			EnvVars: []string{"TABVAULT_CLI_OUTPUT"},
			Value:   prefs.Output,
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show additional table columns",
			Value:   prefs.Wide,
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "request timeout for non-streaming calls",
			EnvVars: []string{"TABVAULT_CLI_TIMEOUT"},
			Value:   prefs.Timeout,
		},
		&cli.StringFlag{
			Name:    "ca",
			Usage:   "PEM file with extra trusted CA certificates",
			EnvVars: []string{"TABVAULT_CLI_CA_FILE"},
			Value:   prefs.CAFile,
		},
	}
}

// GlobalFlags carries the flags every command reads.
type GlobalFlags struct {
	Server  string
	Output  string
	Wide    bool
	Timeout time.Duration
	CAFile  string
}

// ParseGlobalFlags extracts the global flags from the context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Server:  c.String("server"),
		Output:  c.String("output"),
		Wide:    c.Bool("wide"),
		Timeout: c.Duration("timeout"),
		CAFile:  c.String("ca"),
	}
}

// newClient builds the HTTP client for the addressed server. A CA file
// widens the trust pool beyond the system roots.
func newClient(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)

	var opts []connection.ClientOption
	if flags.CAFile != "" {
		pool := tlsroots.NewPool()
		if err := pool.AddCertFile(flags.CAFile); err != nil {
			return nil, err
		}
		opts = append(opts, connection.WithTLSConfig(pool.ClientConfig()))
	}
	return connection.NewHTTPClient(flags.Server, flags.Timeout, opts...), nil
}

// reqContext bounds a non-streaming request with the timeout flag.
func reqContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, ParseGlobalFlags(c).Timeout)
}

// formatFor returns the formatter the output flags select.
func formatFor(c *cli.Context) output.Formatter {
	flags := ParseGlobalFlags(c)
	return output.NewFormatter(output.Format(flags.Output), flags.Wide)
}

// passphraseFlag is shared by the archive commands.
func passphraseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "passphrase",
		Aliases: []string{"p"},
		Usage:   "archive passphrase",
		EnvVars: []string{"TABVAULT_CLI_PASSPHRASE"},
	}
}

// passphraseHeader builds the passphrase header for archive requests.
// Empty when the flag is unset.
func passphraseHeader(c *cli.Context) http.Header {
	hdr := http.Header{}
	if pass := c.String("passphrase"); pass != "" {
		hdr.Set(connection.HeaderPassphrase, pass)
	}
	return hdr
}

// PrintError writes an error line to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
