package dto

import "github.com/modulearn/modulearn-api/internal/models"

// InviteRequest invites a new member into the organization.
type InviteRequest struct {
	Email    string          `json:"email" binding:"required,email"`
	FullName string          `json:"full_name" binding:"required,min=2,max=100"`
	Role     models.UserRole `json:"role" binding:"required,oneof=ADMIN LEARNER"`
}

// UpdateMemberRequest changes a member's role or active flag.
type UpdateMemberRequest struct {
	Role   *models.UserRole `json:"role,omitempty" binding:"omitempty,oneof=ADMIN LEARNER"`
	Active *bool            `json:"active,omitempty"`
}
