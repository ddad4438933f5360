package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ModuleStatus captures the PDF-to-content conversion lifecycle. Transitions
// follow PENDING → PROCESSING → {COMPLETED, FAILED}; a FAILED module may be
// retried back to PROCESSING. COMPLETED is terminal.
type ModuleStatus string

const (
	ModulePending    ModuleStatus = "PENDING"
	ModuleProcessing ModuleStatus = "PROCESSING"
	ModuleCompleted  ModuleStatus = "COMPLETED"
	ModuleFailed     ModuleStatus = "FAILED"
)

// CanTransition reports whether moving from the current status to next is a
// legal lifecycle step.
func (s ModuleStatus) CanTransition(next ModuleStatus) bool {
	switch s {
	case ModulePending:
		return next == ModuleProcessing
	case ModuleProcessing:
		return next == ModuleCompleted || next == ModuleFailed
	case ModuleFailed:
		return next == ModuleProcessing
	default:
		return false
	}
}

// LearningModule is one learning unit derived from an uploaded PDF.
type LearningModule struct {
	ID           string           `db:"id" json:"id"`
	OrgID        string           `db:"org_id" json:"org_id"`
	CreatedBy    string           `db:"created_by" json:"created_by"`
	Title        string           `db:"title" json:"title"`
	Description  string           `db:"description" json:"description"`
	FileKey      string           `db:"file_key" json:"file_key"`
	FileName     string           `db:"file_name" json:"file_name"`
	Status       ModuleStatus     `db:"status" json:"status"`
	Processed    ProcessedContent `db:"processed" json:"processed"`
	AttemptCount int              `db:"attempt_count" json:"attempt_count"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time       `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time       `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// ProcessedContent stores the structured result of document processing as
// JSONB: full markdown plus extraction metadata. Section rows are persisted
// separately for ordering and progress tracking.
type ProcessedContent struct {
	Markdown string           `json:"markdown,omitempty"`
	Metadata DocumentMetadata `json:"metadata,omitempty"`
}

// DocumentMetadata mirrors the processor's metadata block.
type DocumentMetadata struct {
	Title          string                 `json:"title,omitempty"`
	PageCount      int                    `json:"page_count,omitempty"`
	HasImages      bool                   `json:"has_images,omitempty"`
	HasTables      bool                   `json:"has_tables,omitempty"`
	HasCode        bool                   `json:"has_code,omitempty"`
	HasFormulas    bool                   `json:"has_formulas,omitempty"`
	ProcessingInfo map[string]interface{} `json:"processing_info,omitempty"`
}

// Value marshals processed content to JSON for persistence.
func (p ProcessedContent) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal processed content: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the struct.
func (p *ProcessedContent) Scan(value interface{}) error {
	if value == nil {
		*p = ProcessedContent{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ProcessedContent", value)
	}
	if len(data) == 0 {
		*p = ProcessedContent{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal processed content: %w", err)
	}
	return nil
}

// ModuleSection is an ordered, titled chunk of a module's content. Order
// indices are contiguous per module starting at zero.
type ModuleSection struct {
	ID               string    `db:"id" json:"id"`
	ModuleID         string    `db:"module_id" json:"module_id"`
	Title            string    `db:"title" json:"title"`
	Content          string    `db:"content" json:"content"`
	OrderIndex       int       `db:"order_index" json:"order_index"`
	EstimatedMinutes int       `db:"estimated_minutes" json:"estimated_minutes"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ModuleFilter captures listing criteria for modules.
type ModuleFilter struct {
	OrgID    string
	Status   *ModuleStatus
	Search   string
	Page     int
	PageSize int
}
