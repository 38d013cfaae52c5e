package models

import "github.com/google/uuid"

// Role names as they appear in the roles array and in Auth0.
const (
	RoleAdmin  = "admin"
	RoleCoach  = "coach"
	RoleClient = "client"
)

// User mirrors an Auth0 identity plus application-owned state. Fields
// sourced from Auth0 (email, name, connection, email_verified) are
// overwritten by webhook upserts; roles, onboarding status, address and
// coach linkage are owned by the application and must survive upserts.
type User struct {
	Base
	Auth0ID       string      `gorm:"uniqueIndex;not null" json:"auth0_id"`
	Email         string      `gorm:"index;not null" json:"email"`
	Name          string      `json:"name"`
	Connection    string      `json:"connection"`
	EmailVerified bool        `gorm:"default:false" json:"email_verified"`
	Onboarded     bool        `gorm:"default:false" json:"onboarded"`
	Roles         StringArray `gorm:"type:text" json:"roles"`

	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`

	CoachID *uuid.UUID `gorm:"type:uuid;index" json:"coach_id,omitempty"`

	// Relationships
	Coach         *User          `gorm:"foreignKey:CoachID" json:"coach,omitempty"`
	Subscription  *Subscription  `gorm:"foreignKey:UserID" json:"subscription,omitempty"`
	Conversations []Conversation `gorm:"foreignKey:UserID" json:"-"`
	Resources     []Resource     `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Roles.Contains(RoleAdmin)
}

func (u *User) IsCoach() bool {
	return u.Roles.Contains(RoleCoach)
}
