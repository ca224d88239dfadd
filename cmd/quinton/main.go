// Command quinton is a terminal client for the Quinton chat backend.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/MegaGrindStone/quinton-chat/internal/config"
	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/MegaGrindStone/quinton-chat/internal/services"
	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	envFile     string
	apiKey      string
	backendURL  string
	model       string
	personality string
	verbose     bool
}

// app holds what every subcommand needs.
type app struct {
	cfg     config.Config
	catalog models.Catalog
	backend services.Backend
	logger  *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "quinton",
		Short: "Chat with Quinton the Query Wizard",
		Long: "Chat with Quinton the Query Wizard from the terminal. Messages go to the direct chat " +
			"until a PDF is uploaded with /file and /upload, then questions are answered from the document.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default $UserConfigDir/quinton/config.yaml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "file with environment variables to load")
	flags.StringVar(&opts.apiKey, "api-key", "", "OpenAI API key sent with every request")
	flags.StringVar(&opts.backendURL, "backend", "", "backend base URL")
	flags.StringVar(&opts.model, "model", "", "model id")
	flags.StringVar(&opts.personality, "personality", "", "personality id")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newChatCmd(opts), newAskCmd(opts), newHealthCmd(opts))
	return root
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}
}

func newApp(opts *options) (*app, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	path := opts.configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if err := applyFlags(&cfg, opts); err != nil {
		return nil, err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		catalog: catalog,
		backend: services.NewBackend(cfg.BackendURL, &http.Client{}, logger),
		logger:  logger,
	}, nil
}

// applyFlags puts the command line flags over cfg and validates the result. The terminal logs at
// warn level unless the config sets a level; --verbose wins over both.
func applyFlags(cfg *config.Config, opts *options) error {
	if opts.apiKey != "" {
		cfg.APIKey = opts.apiKey
	}
	if opts.backendURL != "" {
		cfg.BackendURL = opts.backendURL
	}
	switch {
	case opts.verbose:
		cfg.LogLevel = slog.LevelDebug.String()
	case cfg.LogLevel == "":
		cfg.LogLevel = slog.LevelWarn.String()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}
