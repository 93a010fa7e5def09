package model

import "time"

// HistoryExport is the top-level JSON structure for evaluation history export.
type HistoryExport struct {
	ExportedAt time.Time          `json:"exported_at"`
	ExamType   string             `json:"exam_type,omitempty"`
	Subject    string             `json:"subject,omitempty"`
	Count      int                `json:"count"`
	Results    []EvaluationResult `json:"results"`
}
