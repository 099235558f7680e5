package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gitvfs/gitvfs"
	"github.com/gitvfs/gitvfs/backend"
	"github.com/gitvfs/gitvfs/remote"
)

var rootCmd = &cobra.Command{
	Use:   "gitvfs",
	Short: "Git-like virtual filesystem CLI",
	Long:  "CLI for managing gitvfs storage roots and syncing with GitHub or GitLab.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/gitvfs/config.yaml)")
	rootCmd.PersistentFlags().String("root", "", "storage root directory (default: ~/.local/share/gitvfs/default)")
	rootCmd.PersistentFlags().String("backend", "", "storage backend: local or sqlite (default: local)")
	rootCmd.PersistentFlags().String("branch", "", "tracked branch (default: main)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("branch", rootCmd.PersistentFlags().Lookup("branch"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("GITVFS")
	viper.AutomaticEnv()
	viper.SetDefault("root", filepath.Join(defaultDataDir(), "default"))
	viper.SetDefault("backend", "local")
	viper.SetDefault("branch", gitvfs.DefaultBranch)
	viper.SetDefault("provider", "gitlab")
	viper.SetDefault("host", "")
	viper.SetDefault("token", "")

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gitvfs")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "gitvfs")
	}
	return ".gitvfs"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "gitvfs")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "gitvfs")
	}
	return ".gitvfs"
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore builds the configured storage backend.
func openStore() (gitvfs.Backend, error) {
	root := viper.GetString("root")
	switch kind := viper.GetString("backend"); kind {
	case "local":
		return backend.NewLocal(root, backend.LocalOptions{})
	case "sqlite":
		return backend.NewSQLite(root + ".db")
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// openAdapter builds the configured remote adapter, nil if no repository is
// configured.
func openAdapter(logger *slog.Logger) (gitvfs.Remote, error) {
	switch provider := viper.GetString("provider"); provider {
	case "gitlab":
		project := viper.GetString("project")
		if project == "" {
			return nil, nil
		}
		return remote.NewGitLab(remote.GitLabConfig{
			Project: project,
			Token:   viper.GetString("token"),
			Host:    viper.GetString("host"),
			Logger:  logger,
		})
	case "github":
		owner, repo := viper.GetString("owner"), viper.GetString("repo")
		if owner == "" || repo == "" {
			return nil, nil
		}
		return remote.NewGitHub(remote.GitHubConfig{
			Owner:  owner,
			Repo:   repo,
			Token:  viper.GetString("token"),
			Logger: logger,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// openVFS wires backend, adapter and options from the resolved config.
func openVFS(ctx context.Context) (*gitvfs.VFS, error) {
	logger := newLogger()

	store, err := openStore()
	if err != nil {
		return nil, err
	}

	adapter, err := openAdapter(logger)
	if err != nil {
		return nil, err
	}

	opts := []gitvfs.OpenOption{
		gitvfs.WithBranch(viper.GetString("branch")),
		gitvfs.WithLogger(logger),
	}
	if adapter != nil {
		opts = append(opts, gitvfs.WithRemote(adapter))
	}

	return gitvfs.Open(ctx, store, opts...)
}
