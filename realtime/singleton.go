package realtime

import (
	log "github.com/sirupsen/logrus"
)

// The hub is a process-wide singleton so every request handler reaches the
// same fan-out channel. It is initialized exactly once at startup, before
// the first request is served, and read-only thereafter.
var instance *Hub

// Init installs the process-wide hub. Calling it twice is a configuration
// error and aborts the process.
func Init(h *Hub) {
	if instance != nil {
		log.Fatal("Realtime hub initialized twice")
	}
	instance = h
}

// Get returns the process-wide hub and fails loudly when no transport has
// been initialized yet.
func Get() *Hub {
	if instance == nil {
		log.Fatal("Realtime hub used before initialization")
	}
	return instance
}
