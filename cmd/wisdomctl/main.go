// Command wisdomctl runs maintenance tasks against the Wisdom database and
// search index without starting the HTTP API.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wisdom/api/internal/config"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "wisdomctl",
		Short:         "Maintenance CLI for the Wisdom API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "optional YAML config file")
	flags.String("database-url", "", "Postgres URL (overrides WISDOM_DATABASE_URL)")
	flags.String("migrations-dir", "", "read migrations from disk instead of the embedded set")
	flags.String("meili-url", "", "Meilisearch URL (overrides WISDOM_MEILI_URL)")
	flags.String("log-level", "", "log level")
	_ = viper.BindPFlag("database_url", flags.Lookup("database-url"))
	_ = viper.BindPFlag("migrations_dir", flags.Lookup("migrations-dir"))
	_ = viper.BindPFlag("meili_url", flags.Lookup("meili-url"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reindexCmd())
	rootCmd.AddCommand(analyticsCmd())
	rootCmd.AddCommand(serveWorkerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig starts from the environment and lets the config file and flags override it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	applyOverrides(&cfg, viper.GetViper())
	return cfg, nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	override := func(key string, target *string) {
		if value := strings.TrimSpace(v.GetString(key)); value != "" {
			*target = value
		}
	}
	override("database_url", &cfg.DatabaseURL)
	override("migrations_dir", &cfg.MigrationsDir)
	override("meili_url", &cfg.MeiliURL)
	override("meili_master_key", &cfg.MeiliMasterKey)
	override("log_level", &cfg.LogLevel)
	override("reindex_cron", &cfg.ReindexCron)
	if v.IsSet("outbox_batch") {
		cfg.OutboxBatch = v.GetInt("outbox_batch")
	}
	if v.IsSet("outbox_interval") {
		cfg.OutboxInterval = v.GetDuration("outbox_interval")
	}
}
