package sse

import (
	"time"

	"github.com/GTDGit/catalog_api/internal/models"
)

// Notifier is the interface services use to emit admin events.
type Notifier interface {
	NotifyImportProgress(ev *models.ImportProgress)
	NotifyCatalogInvalidated(reason string)
}

// HubNotifier implements Notifier using the SSE Hub.
type HubNotifier struct {
	hub *Hub
	now func() time.Time
}

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub, now: time.Now}
}

func (n *HubNotifier) NotifyImportProgress(ev *models.ImportProgress) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(&Event{Event: EventImportProgress, Data: ev, Timestamp: n.now()})
}

func (n *HubNotifier) NotifyCatalogInvalidated(reason string) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(&Event{
		Event:     EventCatalogInvalidated,
		Data:      map[string]string{"reason": reason},
		Timestamp: n.now(),
	})
}

// NopNotifier is a no-op implementation for when SSE is not needed.
type NopNotifier struct{}

func (NopNotifier) NotifyImportProgress(*models.ImportProgress) {}
func (NopNotifier) NotifyCatalogInvalidated(string)             {}
