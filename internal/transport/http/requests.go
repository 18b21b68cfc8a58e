package http

type createRequestRequest struct {
	BusinessID string `json:"business_id" validate:"required,custom_id,min=1,max=100"`
	Phone      string `json:"phone" validate:"required,phone"`
	Source     string `json:"source" validate:"omitempty,min=1,max=50"`
}

type submitRatingRequest struct {
	BusinessID string `json:"business_id" validate:"required,custom_id,min=1,max=100"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
}

type submitFeedbackRequest struct {
	BusinessID string `json:"business_id" validate:"required,custom_id,min=1,max=100"`
	RequestID  string `json:"request_id" validate:"omitempty,custom_id,min=1,max=100"`
	Feedback   string `json:"feedback" validate:"required,min=1,max=4000"`
}
