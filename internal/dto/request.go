package dto

type SetAdjustmentRequest struct {
	Value *int `json:"value" binding:"required"`
}
