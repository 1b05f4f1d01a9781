package backend

import (
	"context"
	"slices"

	"expenses/internal/amqp"
	"expenses/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is an opened store plus the optional change-event client.
// Cleanup closes both.
type BackendResult struct {
	Store   storage.Store
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (t BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), t)
}

func (t BackendType) String() string { return string(t) }

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath   string
	DatabaseURL    string
	MemorySeedFile string

	// AMQP is optional; an empty URL disables change events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// RequireEvents turns an AMQP connection failure into an error instead
	// of a warning. The worker needs events; the server does not.
	RequireEvents bool

	StoreOptions []storage.Option
}
