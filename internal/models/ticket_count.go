package models

// EventStats summarizes the capacity ledger and door activity of an event.
type EventStats struct {
	EventID     string `json:"event_id"`
	MaxTickets  int    `json:"max_tickets"`
	TicketsSold int    `json:"tickets_sold"`
	Remaining   int    `json:"remaining"`
	TicketCount int    `json:"ticket_count"`
	CheckedIn   int    `json:"checked_in"`
}
