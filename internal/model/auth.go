package model

import "time"

const (
	RoleJobseeker = "jobseeker"
	RoleAdmin     = "admin"
)

type Profile struct {
	FullName    string
	PhoneNumber string
	Bio         string
	Skills      []string
	ResumeURL   string
}

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CompanyID    string
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileUpdate carries only the fields a caller wants to change.
type ProfileUpdate struct {
	FullName    *string
	PhoneNumber *string
	Bio         *string
	Skills      *[]string
	ResumeURL   *string
}

func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.PhoneNumber == nil && p.Bio == nil && p.Skills == nil && p.ResumeURL == nil
}

// Apply returns a copy of profile with the update's non-nil fields set.
func (p ProfileUpdate) Apply(profile Profile) Profile {
	if p.FullName != nil {
		profile.FullName = *p.FullName
	}
	if p.PhoneNumber != nil {
		profile.PhoneNumber = *p.PhoneNumber
	}
	if p.Bio != nil {
		profile.Bio = *p.Bio
	}
	if p.Skills != nil {
		profile.Skills = append([]string(nil), (*p.Skills)...)
	}
	if p.ResumeURL != nil {
		profile.ResumeURL = *p.ResumeURL
	}
	return profile
}

// AuthUser is the identity decoded from a verified access token.
type AuthUser struct {
	ID   string
	Role string
}

// TokenRecord is the single live session of a user.
type TokenRecord struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

type LoginEvent struct {
	ID        string
	UserID    string
	LoginAt   time.Time
	IPAddress string
}
