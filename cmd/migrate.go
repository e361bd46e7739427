package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmehdipour/data-moodboard/internal/db"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var skipClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE MySQL tables, create ClickHouse objects)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		sqlPath := filepath.Join("migrations", "001_init.sql")
		sqlBytes, err := os.ReadFile(sqlPath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", sqlPath, err)
		}

		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		if _, err := sqlDB.Exec(string(sqlBytes)); err != nil {
			_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
			return fmt.Errorf("exec migration: %w", err)
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}
		logger.Log.Info("mysql migration complete", zap.String("file", sqlPath))

		if skipClickHouse || cfg.ClickHouse.DSN == "" {
			return nil
		}

		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:         cfg.ClickHouse.DSN,
			PingTimeout: cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()

		files, err := filepath.Glob(filepath.Join("migrations", "clickhouse", "*.sql"))
		if err != nil {
			return err
		}
		sort.Strings(files)
		for _, f := range files {
			b, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("read migration file %s: %w", f, err)
			}
			// the clickhouse driver runs one statement per Exec
			for _, stmt := range splitStatements(string(b)) {
				if _, err := chDB.Exec(stmt); err != nil {
					return fmt.Errorf("exec %s: %w", f, err)
				}
			}
			logger.Log.Info("clickhouse migration complete", zap.String("file", f))
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&skipClickHouse, "skip-clickhouse", false, "only migrate MySQL")
}

// splitStatements splits a script on semicolons and drops chunks that hold only comments.
func splitStatements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";") {
		var body []string
		for _, line := range strings.Split(chunk, "\n") {
			if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "--") {
				body = append(body, line)
			}
		}
		if len(body) > 0 {
			out = append(out, strings.TrimSpace(strings.Join(body, "\n")))
		}
	}
	return out
}
