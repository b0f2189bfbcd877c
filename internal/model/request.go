package model

type SendMessageRequest struct {
	Content string        `json:"content"`
	Image   *ImagePayload `json:"image"`
}

// ImagePayload carries an attachment in JSON requests; Data is base64.
type ImagePayload struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

type SetModeRequest struct {
	Mode ResponseMode `json:"mode" binding:"required"`
}

type RegisterRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	Whatsapp        string `json:"whatsapp" validate:"required"`
	Age             int    `json:"age" validate:"required,gt=0"`
	Gender          string `json:"gender" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type AvatarRequest struct {
	Avatar string `json:"avatar" binding:"required"`
}

type ImageGenerateRequest struct {
	Prompt      string `json:"prompt" binding:"required"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspect_ratio"`
	Quality     string `json:"quality"`
}
