package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type ElementType string

const (
	ElementText  ElementType = "text"
	ElementShape ElementType = "shape"
	ElementImage ElementType = "image"
	ElementChart ElementType = "chart"
)

func (t ElementType) Valid() bool {
	switch t {
	case ElementText, ElementShape, ElementImage, ElementChart:
		return true
	}
	return false
}

// CanvasItem is one visual element placed on a dashboard canvas.
type CanvasItem struct {
	ID       string         `json:"id"`
	Type     ElementType    `json:"type"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Width    float64        `json:"width"`
	Height   float64        `json:"height"`
	Rotation float64        `json:"rotation,omitempty"`
	Z        int            `json:"z,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
}

// Canvas is stored as a JSON column on dashboards.
type Canvas struct {
	Items      []CanvasItem `json:"items"`
	Background string       `json:"background,omitempty"`
}

func (c Canvas) Value() (driver.Value, error) {
	if c.Items == nil {
		c.Items = []CanvasItem{}
	}
	return json.Marshal(c)
}

func (c *Canvas) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = Canvas{Items: []CanvasItem{}}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("canvas: unsupported scan type")
	}
}

type Dashboard struct {
	ID        string    `db:"id"         json:"id"`
	UserID    string    `db:"user_id"    json:"user_id"`
	Name      string    `db:"name"       json:"name"`
	Canvas    Canvas    `db:"canvas"     json:"canvas"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DashboardSummary is the list projection (no canvas body).
type DashboardSummary struct {
	ID        string    `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	ItemCount int       `db:"item_count" json:"item_count"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
