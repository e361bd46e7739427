package model

// AdminTotals are point-in-time counts read from MySQL.
type AdminTotals struct {
	Users               int64            `json:"users"`
	ProUsers            int64            `json:"pro_users"`
	Dashboards          int64            `json:"dashboards"`
	DataTables          int64            `json:"data_tables"`
	ImagesToday         int64            `json:"images_today"`
	ConnectionsByVendor map[string]int64 `json:"connections_by_provider"`
}

// ActivityPoint is one day of the ClickHouse activity rollup.
type ActivityPoint struct {
	Day             string `db:"day"              json:"day"`
	ActiveUsers     uint64 `db:"active_users"     json:"active_users"`
	AIRequests      uint64 `db:"ai_requests"      json:"ai_requests"`
	ImagesGenerated uint64 `db:"images_generated" json:"images_generated"`
	Signups         uint64 `db:"signups"          json:"signups"`
}
