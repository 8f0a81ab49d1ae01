// Package main provides the scout CLI, which drives repository scans without the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"issue-scout/internal/bootstrap"
	"issue-scout/internal/shared/config"
	"issue-scout/internal/shared/storage/db"
	"issue-scout/internal/shared/telemetry"
)

const (
	configName = ".scout"
	configType = "yaml"
	envPrefix  = "SCOUT"
)

// builder creates the application graph for one command invocation.
type builder func(ctx context.Context, cfg config.Config) (*bootstrap.App, error)

type cli struct {
	v     *viper.Viper
	out   io.Writer
	build builder
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	telemetry.SetOutput(os.Stderr)

	root := newRootCommand(os.Stdout, func(ctx context.Context, cfg config.Config) (*bootstrap.App, error) {
		return bootstrap.Build(ctx, cfg, bootstrap.Options{DBOptions: db.DefaultCLIOptions()})
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer, build builder) *cobra.Command {
	_, root := newCLI(out, build)
	return root
}

func newCLI(out io.Writer, build builder) (*cli, *cobra.Command) {
	c := &cli{v: viper.New(), out: out, build: build}

	root := &cobra.Command{
		Use:   "scout",
		Short: "Scan repositories for contribution-worthy issues",
		Long: `scout runs the repository scan pipeline from the command line.

Commands:
  scan      Add a repository and scan it to completion
  resume    Continue the latest interrupted scan
  cancel    Cancel the active scan of a repository
  progress  Show the latest scan's progress log`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.v.GetBool("quiet") {
				telemetry.SetOutput(io.Discard)
			}
			return c.loadConfigFile()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.BoolP("quiet", "q", false, "suppress structured log lines on stderr")
	flags.String("config", "", "config file (default .scout.yaml in the working directory or $HOME)")
	flags.String("database-url", "", "Postgres URL; in-memory storage when empty")
	flags.String("github-token", "", "GitHub API token")
	flags.String("env", "", "environment name (dev, production)")
	flags.String("llm-provider", "", "LLM backend: openai, anthropic or none")
	flags.Int("batch-size", 0, "files per checkpoint batch")
	flags.String("heuristics", "", "YAML file overriding the structure heuristics")
	_ = c.v.BindPFlags(flags)

	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		c.scanCommand(),
		c.resumeCommand(),
		c.cancelCommand(),
		c.progressCommand(),
	)
	return c, root
}

func (c *cli) loadConfigFile() error {
	c.v.SetConfigType(configType)
	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
	} else {
		c.v.SetConfigName(configName)
		c.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// config overlays flags, SCOUT_* env vars and the config file on top of the server defaults.
func (c *cli) config() config.Config {
	cfg := config.Load()
	if v := c.v.GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := c.v.GetString("github-token"); v != "" {
		cfg.GitHubToken = v
	}
	if v := c.v.GetString("env"); v != "" {
		cfg.Env = v
	}
	if v := c.v.GetString("llm-provider"); v != "" {
		cfg.LLMProvider = v
	}
	if v := c.v.GetInt("batch-size"); v > 0 {
		cfg.ScanBatchSize = v
	}
	if v := c.v.GetString("heuristics"); v != "" {
		cfg.HeuristicsFile = v
	}
	return cfg
}

// withApp builds the app, runs fn and stops any scan still in flight.
func (c *cli) withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	app, err := c.build(ctx, c.config())
	if err != nil {
		return err
	}
	runErr := fn(app)
	closeErr := app.Close(context.WithoutCancel(ctx))
	if runErr != nil {
		return runErr
	}
	return closeErr
}
