package repository

import (
	"context"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

// AdminStatsRepository reads point-in-time totals from MySQL.
type AdminStatsRepository interface {
	Totals(ctx context.Context, day string) (model.AdminTotals, error)
}

type AdminStatsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAdminStatsRepository(db *sqlx.DB) *AdminStatsRepositoryImpl {
	return &AdminStatsRepositoryImpl{db: db}
}

var _ AdminStatsRepository = (*AdminStatsRepositoryImpl)(nil)

func (r *AdminStatsRepositoryImpl) Totals(ctx context.Context, day string) (model.AdminTotals, error) {
	var t model.AdminTotals

	var counts struct {
		Users       int64 `db:"users"`
		ProUsers    int64 `db:"pro_users"`
		Dashboards  int64 `db:"dashboards"`
		DataTables  int64 `db:"data_tables"`
		ImagesToday int64 `db:"images_today"`
	}
	err := r.db.GetContext(ctx, &counts, `
		SELECT
		    (SELECT COUNT(*) FROM profiles)                                  AS users,
		    (SELECT COUNT(*) FROM profiles WHERE plan = 'pro')               AS pro_users,
		    (SELECT COUNT(*) FROM dashboards)                                AS dashboards,
		    (SELECT COUNT(*) FROM user_data_tables)                          AS data_tables,
		    (SELECT COALESCE(SUM(count), 0) FROM ai_image_usage WHERE usage_date = ?) AS images_today
	`, day)
	if err != nil {
		return t, err
	}
	t.Users = counts.Users
	t.ProUsers = counts.ProUsers
	t.Dashboards = counts.Dashboards
	t.DataTables = counts.DataTables
	t.ImagesToday = counts.ImagesToday

	var byProvider []struct {
		Provider string `db:"provider"`
		N        int64  `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &byProvider, `
		SELECT provider, COUNT(*) AS n FROM data_connections GROUP BY provider
	`); err != nil {
		return t, err
	}
	t.ConnectionsByVendor = make(map[string]int64, len(byProvider))
	for _, p := range byProvider {
		t.ConnectionsByVendor[p.Provider] = p.N
	}
	return t, nil
}
