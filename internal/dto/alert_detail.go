package dto

import "farmsentry/internal/model"

// AlertDetail is a stored alert together with the boxes that triggered it.
type AlertDetail struct {
	model.Alert
	Detections []model.Detection `json:"detections"`
}
