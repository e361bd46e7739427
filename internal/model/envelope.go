package model

// SyncEnvelope is the payload published to Kafka (via Debezium outbox SMT)
// asking the datasync worker to import a resource into a data table.
type SyncEnvelope struct {
	TableID      string   `json:"table_id"`
	UserID       string   `json:"user_id"`
	ConnectionID string   `json:"connection_id"`
	Provider     Provider `json:"provider"`
	Resource     string   `json:"resource"`
}
