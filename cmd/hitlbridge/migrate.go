package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/config"
	"github.com/BaSui01/hitlbridge/internal/migration"
)

// runMigrate 处理 migrate 子命令. 参数格式：migrate <subcommand> [flags] [arg].
func runMigrate(args []string) int {
	if len(args) < 1 {
		printMigrateUsage()
		return 1
	}
	sub := args[0]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage()
		return 0
	}
	if !slices.Contains(migration.Commands, sub) {
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
		printMigrateUsage()
		return 1
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	verbose := fs.Bool("verbose", false, "Log golang-migrate output")
	_ = fs.Parse(args[1:])

	logger := zap.NewNop()
	if *verbose {
		logger = initLogger(config.LogConfig{Level: "debug", Format: "console"})
	}

	m, err := createMigrator(*configPath, *dbType, *dbURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		return 1
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migration.NewCLI(m).Run(ctx, sub, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", sub, err)
		return 1
	}
	return 0
}

// createMigrator 优先使用 --db-type/--db-url，否则读取配置文件中的 database 段.
func createMigrator(configPath, dbType, dbURL string, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, logger)
	}

	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

func printMigrateUsage() {
	fmt.Printf(`Audit Table Migration Commands

Usage:
  hitlbridge migrate <subcommand> [options] [arg]

Subcommands:
  %s

  steps, goto and force take one numeric argument.

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)
  --verbose           Log golang-migrate output

Examples:
  hitlbridge migrate up
  hitlbridge migrate status --config /etc/hitlbridge/config.yaml
  hitlbridge migrate goto --db-type sqlite --db-url file:audit.db 1
`, strings.Join(migration.Commands, ", "))
}
