package assignment

import (
	"time"

	"adcampaign-controlplane/services/campaign"
)

// CampaignAssignment grants one contractor access to one campaign. Rows are
// created and deleted, never edited.
type CampaignAssignment struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CampaignID   int64     `gorm:"column:campaign_id;not null;uniqueIndex:idx_assignments_pair" json:"campaign_id,string"`
	ContractorID int64     `gorm:"column:contractor_id;not null;uniqueIndex:idx_assignments_pair;index" json:"contractor_id,string"`
	AssignedBy   int64     `gorm:"column:assigned_by;not null" json:"assigned_by,string"`
	AssignedAt   time.Time `gorm:"column:assigned_at;not null" json:"assigned_at"`

	Campaign *campaign.Campaign `gorm:"foreignKey:CampaignID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (CampaignAssignment) TableName() string { return "campaign_assignments" }
