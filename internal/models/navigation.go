package models

import (
	"time"

	"github.com/google/uuid"
)

// Route is a host-side screen the agent can direct the shell to
type Route string

const (
	RouteHome          Route = "home"
	RouteTripSelection Route = "trip_selection"
	RouteSeatSelection Route = "seat_selection"
)

// NavigationKind tells the host how to apply a command
type NavigationKind string

const (
	// NavigationReset replaces the whole navigation stack with the route
	NavigationReset NavigationKind = "reset"
	// NavigationPush pushes the route onto the current stack
	NavigationPush NavigationKind = "push"
	// NavigationOpenExternal hands control to an external surface (browser)
	NavigationOpenExternal NavigationKind = "open_external"
)

// NavigationCommand is one instruction for the host shell
type NavigationCommand struct {
	ID       uuid.UUID      `json:"id"`
	Kind     NavigationKind `json:"kind"`
	Route    Route          `json:"route,omitempty"`
	URL      string         `json:"url,omitempty"`
	IssuedAt time.Time      `json:"issued_at"`
}
