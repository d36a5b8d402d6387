// Package model holds the gorm models backing the audit store.
package model

import (
	"gorm.io/datatypes"
)

// AutomationEventModel is one persisted entity lifecycle transition.
type AutomationEventModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EntityKind    string         `gorm:"column:entity_kind;index:idx_event_entity,priority:1"`
	EntityID      string         `gorm:"column:entity_id;index:idx_event_entity,priority:2"`
	Symbol        string         `gorm:"column:symbol;index"`
	Event         string         `gorm:"column:event"`
	Details       datatypes.JSON `gorm:"column:details;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (AutomationEventModel) TableName() string { return "automation_events" }
