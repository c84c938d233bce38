package sse

import (
	"context"
	"sync"

	"ms-checkin/internal/models"
)

const clientBuffer = 16

// CheckInEmitter fans completed check-ins out to the live dashboards of each event.
type CheckInEmitter struct {
	// key: eventID, value: client channels
	eventClients     map[string][]chan models.TicketCheckedInEvent
	eventClientMutex sync.RWMutex
}

func NewCheckInEmitter() *CheckInEmitter {
	return &CheckInEmitter{
		eventClients: make(map[string][]chan models.TicketCheckedInEvent),
	}
}

// SubscribeToEvent registers a client for the event's check-ins. The channel
// is closed once ctx is done.
func (e *CheckInEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan models.TicketCheckedInEvent {
	clientChan := make(chan models.TicketCheckedInEvent, clientBuffer)

	e.eventClientMutex.Lock()
	e.eventClients[eventID] = append(e.eventClients[eventID], clientChan)
	e.eventClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeEventClient(eventID, clientChan)
	}()

	return clientChan
}

// EmitCheckIn broadcasts a check-in to every subscriber of its event.
func (e *CheckInEmitter) EmitCheckIn(event models.TicketCheckedInEvent) {
	// Held for the sends so a disconnecting client cannot close its channel mid-broadcast.
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()

	for _, clientChan := range e.eventClients[event.EventID] {
		// Non-blocking send to avoid slowing down emitter if client is slow
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *CheckInEmitter) removeEventClient(eventID string, clientChan chan models.TicketCheckedInEvent) {
	e.eventClientMutex.Lock()
	defer e.eventClientMutex.Unlock()

	clients := e.eventClients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.eventClients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	// Clean up map entry if no more clients
	if len(e.eventClients[eventID]) == 0 {
		delete(e.eventClients, eventID)
	}
}

// GetEventClientCount returns the number of clients currently subscribed to an event
func (e *CheckInEmitter) GetEventClientCount(eventID string) int {
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()
	return len(e.eventClients[eventID])
}
