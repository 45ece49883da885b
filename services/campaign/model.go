package campaign

import (
	"fmt"
	"time"

	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/services/access"
	"adcampaign-controlplane/services/directory"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = Status(access.CampaignInProgress)
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists every permitted move. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusNew:        {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNew, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown campaign status %q", s)
	}
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from → to is an edge of the lifecycle.
// Staying in place is not a transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Campaign struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID   int64      `gorm:"column:company_id;not null;index:idx_campaigns_company_slug" json:"company_id,string"`
	Code        string     `gorm:"column:code;type:varchar(32);not null;uniqueIndex" json:"code"`
	Name        string     `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Slug        string     `gorm:"column:slug;type:varchar(255);not null;index:idx_campaigns_company_slug" json:"slug"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	Status      Status     `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	StartDate   *time.Time `gorm:"column:start_date" json:"start_date,omitempty"`
	EndDate     *time.Time `gorm:"column:end_date" json:"end_date,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedBy   int64      `gorm:"column:created_by;not null" json:"created_by,string"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Company *directory.Company `gorm:"foreignKey:CompanyID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
}

func (Campaign) TableName() string { return "campaigns" }

// Target is the access view of the campaign for an action on resource.
func (c *Campaign) Target(resource access.Resource, assigned bool) access.Target {
	return access.Target{
		Resource:       resource,
		CompanyID:      c.CompanyID,
		CampaignStatus: string(c.Status),
		Assigned:       assigned,
	}
}

// snapshot is the audit view of a campaign.
type snapshot struct {
	Status      Status     `json:"status"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (c *Campaign) snapshot() snapshot {
	return snapshot{
		Status:      c.Status,
		Name:        c.Name,
		Description: c.Description,
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
		CompletedAt: c.CompletedAt,
	}
}

func statusError(value string, err error) error {
	return errutil.ValidationFailed("unknown campaign status", err,
		errutil.WithDetails(errutil.Detail{Field: "status", Message: value}))
}
