package image

import (
	"fmt"
	"time"

	"adcampaign-controlplane/services/campaign"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown image status %q", s)
	}
}

// ParseDecision accepts only the two review outcomes.
func ParseDecision(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("review decision must be approved or rejected, got %q", s)
	}
}

// Image is one proof-of-work submission. A rejected image is superseded by a
// new row, never reset to pending.
type Image struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CampaignID      int64      `gorm:"column:campaign_id;not null;index" json:"campaign_id,string"`
	UploadedBy      int64      `gorm:"column:uploaded_by;not null;index" json:"uploaded_by,string"`
	Filename        string     `gorm:"column:filename;type:varchar(255);not null" json:"filename"`
	Path            string     `gorm:"column:path;type:varchar(1024);not null" json:"path"`
	Size            int64      `gorm:"column:size;not null" json:"size"`
	MimeType        string     `gorm:"column:mime_type;type:varchar(100)" json:"mime_type"`
	Status          Status     `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	RejectionReason *string    `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`
	ReviewedBy      *int64     `gorm:"column:reviewed_by" json:"reviewed_by,string,omitempty"`
	ReviewedAt      *time.Time `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	UploadedAt      time.Time  `gorm:"column:uploaded_at;not null" json:"uploaded_at"`

	Campaign *campaign.Campaign `gorm:"foreignKey:CampaignID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (Image) TableName() string { return "images" }

// FileDescriptor points at a file the storage layer already accepted.
type FileDescriptor struct {
	Filename string
	Path     string
	Size     int64
	MimeType string
}

// Summary counts the images of a campaign per review status.
type Summary struct {
	CampaignID int64 `json:"campaign_id,string"`
	Pending    int64 `json:"pending"`
	Approved   int64 `json:"approved"`
	Rejected   int64 `json:"rejected"`
	Total      int64 `json:"total"`
}

type reviewSnapshot struct {
	Status          Status     `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ReviewedBy      *int64     `json:"reviewed_by,string,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
}

func (i *Image) reviewSnapshot() reviewSnapshot {
	return reviewSnapshot{
		Status:          i.Status,
		RejectionReason: i.RejectionReason,
		ReviewedBy:      i.ReviewedBy,
		ReviewedAt:      i.ReviewedAt,
	}
}
