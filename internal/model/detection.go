package model

// Detection represents one detected object that triggered an alert.
type Detection struct {
	ID         int64   `json:"id"`
	AlertID    string  `json:"alert_id"`
	ClassID    int     `json:"class_id"`
	ObjectName string  `json:"object_name"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}
