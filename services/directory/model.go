package directory

import "time"

// Company is the tenant boundary. Rows are owned by the account
// management system; this service only reads them, apart from the staff
// bootstrap in Service.CreateCompany.
type Company struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	IsActive  bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

// User is a caller known to the directory. CompanyID is set for clients and
// for company-bound staff.
type User struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	Email     string    `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	Role      string    `gorm:"column:role;type:varchar(20);not null;index" json:"role"`
	CompanyID *int64    `gorm:"column:company_id;index" json:"company_id,string,omitempty"`
	IsActive  bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (User) TableName() string { return "users" }
