package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jmehdipour/data-moodboard/internal/db"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	demoUserID      = "demo-user"
	demoEmail       = "demo@moodboard.local"
	demoDashboardID = "01HZZZDEM0DASHB0ARD0000000"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo profile and dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		logger.Log.Info("seeding demo data", zap.String("user_id", demoUserID))

		if err := seedDemo(sqlDB); err != nil {
			return err
		}

		logger.Log.Info("seed completed")
		return nil
	},
}

func demoCanvas() model.Canvas {
	return model.Canvas{
		Background: "#f8fafc",
		Items: []model.CanvasItem{
			{
				ID: "title", Type: model.ElementText, X: 40, Y: 32, Width: 480, Height: 56,
				Props: map[string]any{"text": "Q2 Sales Moodboard", "fontSize": 32},
			},
			{
				ID: "revenue", Type: model.ElementChart, X: 40, Y: 120, Width: 480, Height: 320,
				Props: map[string]any{"chartType": "line", "title": "Revenue by month"},
			},
			{
				ID: "accent", Type: model.ElementShape, X: 560, Y: 120, Width: 240, Height: 240,
				Props: map[string]any{"shape": "circle", "fill": "#6366f1"},
			},
		},
	}
}

// seedDemo upserts the demo profile and its dashboard (idempotent).
func seedDemo(dbx *sqlx.DB) error {
	canvas, err := json.Marshal(demoCanvas())
	if err != nil {
		return err
	}

	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`
INSERT INTO profiles (id, email, display_name, plan, subscription_status, is_admin, created_at, updated_at)
VALUES (?, ?, 'Demo User', 'free', 'none', 1, NOW(), NOW())
ON DUPLICATE KEY UPDATE
    email      = VALUES(email),
    is_admin   = VALUES(is_admin),
    updated_at = NOW()
`, demoUserID, demoEmail); err != nil {
		return fmt.Errorf("upsert demo profile: %w", err)
	}

	if _, err := tx.Exec(`
INSERT INTO dashboards (id, user_id, name, canvas, created_at, updated_at)
VALUES (?, ?, 'Demo dashboard', ?, NOW(), NOW())
ON DUPLICATE KEY UPDATE
    canvas     = VALUES(canvas),
    updated_at = NOW()
`, demoDashboardID, demoUserID, canvas); err != nil {
		return fmt.Errorf("upsert demo dashboard: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
