package model

import "time"

type ProfilePayload struct {
	FullName    string   `json:"fullName" binding:"required,max=100"`
	PhoneNumber string   `json:"phoneNumber" binding:"omitempty,max=20"`
	Bio         string   `json:"bio" binding:"omitempty,max=1000"`
	Skills      []string `json:"skills" binding:"omitempty,dive,max=50"`
	ResumeURL   string   `json:"resumeUrl" binding:"omitempty,url"`
}

type RegisterRequest struct {
	Username  string         `json:"username" binding:"required,min=2,max=50"`
	Email     string         `json:"email" binding:"required,email"`
	Password  string         `json:"password" binding:"required,min=8,max=72"`
	Role      string         `json:"role" binding:"omitempty,oneof=jobseeker admin"`
	CompanyID string         `json:"companyId"`
	Profile   ProfilePayload `json:"profile"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	FullName    *string   `json:"fullName" binding:"omitempty,max=100"`
	PhoneNumber *string   `json:"phoneNumber" binding:"omitempty,max=20"`
	Bio         *string   `json:"bio" binding:"omitempty,max=1000"`
	Skills      *[]string `json:"skills" binding:"omitempty,dive,max=50"`
	ResumeURL   *string   `json:"resumeUrl" binding:"omitempty,url"`
	OldPassword string    `json:"oldPassword"`
	NewPassword string    `json:"newPassword" binding:"omitempty,min=8,max=72"`
}

type DeleteProfileRequest struct {
	Password string `json:"password" binding:"required"`
}

type ProfileResponse struct {
	FullName    string   `json:"fullName"`
	PhoneNumber string   `json:"phoneNumber"`
	Bio         string   `json:"bio"`
	Skills      []string `json:"skills"`
	ResumeURL   string   `json:"resumeUrl"`
}

// UserResponse is a user with credentials stripped.
type UserResponse struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	CompanyID string          `json:"companyId,omitempty"`
	Profile   ProfileResponse `json:"profile"`
	CreatedAt time.Time       `json:"createdAt"`
}

func NewUserResponse(u *User) UserResponse {
	skills := u.Profile.Skills
	if skills == nil {
		skills = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CompanyID: u.CompanyID,
		Profile: ProfileResponse{
			FullName:    u.Profile.FullName,
			PhoneNumber: u.Profile.PhoneNumber,
			Bio:         u.Profile.Bio,
			Skills:      skills,
			ResumeURL:   u.Profile.ResumeURL,
		},
		CreatedAt: u.CreatedAt,
	}
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type LoginEventResponse struct {
	LoginAt   time.Time `json:"loginAt"`
	IPAddress string    `json:"ipAddress"`
}

type LoginHistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}
