// Package backend opens the ledger store selected by DATA_BACKEND together
// with the optional broker connection used to request account ticks.
package backend

import (
	"context"
	"errors"
	"fmt"

	"cajaclaro/internal/config"
	"cajaclaro/internal/services"
	"cajaclaro/internal/storage"
)

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// Types lists the accepted DATA_BACKEND values.
var Types = []BackendType{SQLiteBackend, MemoryBackend}

func (bt BackendType) IsValid() bool {
	return bt == SQLiteBackend || bt == MemoryBackend
}

// Config selects the store and broker to open.
type Config struct {
	Type         BackendType
	SQLiteDBPath string

	// Broker settings. An empty URL disables tick requests.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendResult is what CreateBackend opened. Cleanup closes all of it.
type BackendResult struct {
	Store storage.Store
	// Publisher is nil when no broker is configured or reachable.
	Publisher services.TickPublisher
	Cleanup   func() error
}

type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error)
}

// FromAppConfig picks the backend settings out of the process config.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errors.New("nil app config")
	}
	out := Config{
		Type:         BackendType(cfg.DataBackend),
		SQLiteDBPath: cfg.SQLiteDBPath,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		AMQPQueue:    cfg.AMQPQueue,
	}
	if !out.Type.IsValid() {
		return Config{}, fmt.Errorf("data backend %q: must be one of %v", cfg.DataBackend, Types)
	}
	return out, nil
}

func (c Config) Validate() error {
	switch {
	case !c.Type.IsValid():
		return fmt.Errorf("data backend %q: must be one of %v", c.Type, Types)
	case c.Type == SQLiteBackend && c.SQLiteDBPath == "":
		return errors.New("sqlite backend needs a database path")
	case c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == ""):
		return errors.New("AMQP_URL needs AMQP_EXCHANGE and AMQP_QUEUE")
	}
	return nil
}
