package dto

type CreateBookDTO struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Authors     []string `json:"authors" binding:"required,min=1"`
	Description string   `json:"description" binding:"max=2000"`
	Language    string   `json:"language"`
	IsPublic    *bool    `json:"isPublic"`
}

type ProgressDTO struct {
	Format      string `json:"format" binding:"required"`
	SessionTime int64  `json:"sessionTime" binding:"omitempty,min=1"`
}

type RatingDTO struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

type UpdateUserDTO struct {
	Username string `json:"username" binding:"omitempty,min=3,max=50"`
}

type UpdateUserStatusDTO struct {
	Status string `json:"status" binding:"required,oneof=active inactive suspended"`
}

type CreateUserDTO struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"omitempty,oneof=user moderator admin"`
}
