package models

// ServiceBay is a physical bay that appointments are booked into.
// Bays are managed by admin tooling; the reconciler only reads active ones.
type ServiceBay struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}
