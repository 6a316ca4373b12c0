package dto

// AlertFilters describe user-provided filters to narrow the alert list.
type AlertFilters struct {
	Object     string
	UnreadOnly bool
	Limit      int
	Offset     int
}
