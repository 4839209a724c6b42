package auth

// RegisterDTO is the sign-up payload.
type RegisterDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginDTO is the credential payload.
type LoginDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshDTO carries a refresh token.
type RefreshDTO struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdateProfileDTO holds the fields a user may change about themselves.
type UpdateProfileDTO struct {
	Name string `json:"name"`
}

// ChangePasswordDTO rotates a password after verifying the old one.
type ChangePasswordDTO struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
