package models

import "fmt"

// TimeSlot is one bookable interval for a bay on a calendar date.
// (BayID, SlotDate, StartTime) is unique.
type TimeSlot struct {
	BayID       string `json:"bay_id"`
	SlotDate    string `json:"slot_date"`  // YYYY-MM-DD
	StartTime   string `json:"start_time"` // HH:MM:SS
	EndTime     string `json:"end_time"`   // HH:MM:SS
	IsAvailable bool   `json:"is_available"`
}

// Key returns the identity of the slot in the same column order as the
// unique index (slot_date, start_time, bay_id).
func (s TimeSlot) Key() SlotKey {
	return SlotKey{SlotDate: s.SlotDate, StartTime: s.StartTime, BayID: s.BayID}
}

// SlotKey is the composite identity of a TimeSlot
type SlotKey struct {
	SlotDate  string
	StartTime string
	BayID     string
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s %s bay=%s", k.SlotDate, k.StartTime, k.BayID)
}
