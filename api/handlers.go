package api

import (
	"github.com/mnemo-app/mnemo/digest"
	"github.com/mnemo-app/mnemo/log"
	"github.com/mnemo-app/mnemo/notifications"
)

var logger = log.GetLogger("api")

// Handlers carries the services the HTTP layer talks to
type Handlers struct {
	registry    *digest.Registry
	supervisor  *digest.Supervisor
	coordinator *digest.Coordinator
	store       digest.Store
	notifier    *notifications.Service
}

// NewHandlers creates the handler set
func NewHandlers(registry *digest.Registry, supervisor *digest.Supervisor, coordinator *digest.Coordinator, store digest.Store, notifier *notifications.Service) *Handlers {
	return &Handlers{
		registry:    registry,
		supervisor:  supervisor,
		coordinator: coordinator,
		store:       store,
		notifier:    notifier,
	}
}
