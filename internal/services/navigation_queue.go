package services

import (
	"sync"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/google/uuid"
)

// Navigator issues navigation instructions to the host shell
type Navigator interface {
	// Reset replaces the navigation stack with a single route
	Reset(route models.Route)
	// Push opens a route on top of the current stack
	Push(route models.Route)
	// OpenExternal hands control to an external surface such as a payment page
	OpenExternal(url string)
}

// NavigationQueue buffers navigation commands until the host drains them
type NavigationQueue struct {
	mu       sync.Mutex
	commands []models.NavigationCommand
	notify   chan struct{}
}

// NewNavigationQueue creates an empty queue
func NewNavigationQueue() *NavigationQueue {
	return &NavigationQueue{notify: make(chan struct{}, 1)}
}

func (q *NavigationQueue) Reset(route models.Route) {
	q.enqueue(models.NavigationCommand{Kind: models.NavigationReset, Route: route})
}

func (q *NavigationQueue) Push(route models.Route) {
	q.enqueue(models.NavigationCommand{Kind: models.NavigationPush, Route: route})
}

func (q *NavigationQueue) OpenExternal(url string) {
	q.enqueue(models.NavigationCommand{Kind: models.NavigationOpenExternal, URL: url})
}

// Drain returns and removes all pending commands in issue order
func (q *NavigationQueue) Drain() []models.NavigationCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.commands
	q.commands = nil
	if out == nil {
		out = []models.NavigationCommand{}
	}
	return out
}

// Pending is signalled whenever a command is queued
func (q *NavigationQueue) Pending() <-chan struct{} {
	return q.notify
}

func (q *NavigationQueue) enqueue(cmd models.NavigationCommand) {
	cmd.ID = uuid.New()
	cmd.IssuedAt = time.Now()

	q.mu.Lock()
	q.commands = append(q.commands, cmd)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
