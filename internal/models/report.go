package models

// ReportStatus tracks moderation progress on a report.
type ReportStatus string

const (
	ReportStatusOpen     ReportStatus = "open"
	ReportStatusResolved ReportStatus = "resolved"
)

// ReportTargetPost is the only target type this layer files.
const ReportTargetPost = "post"

// Report is an append-only moderation request.
type Report struct {
	ID         string       `json:"id"`
	TargetType string       `json:"targetType"`
	TargetID   string       `json:"targetId"`
	Reason     string       `json:"reason"`
	ReporterID string       `json:"reporterId,omitempty"`
	CreatedAt  Timestamp    `json:"createdAt"`
	Status     ReportStatus `json:"status"`
}
