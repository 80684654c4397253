package factory

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/model"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// WriterFactory builds a writer from its configuration.
type WriterFactory func(def config.WriterDef, interval time.Duration) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered writer types, sorted.
func Types() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CreateWriters builds every enabled writer. Writers with an invalid interval
// or that fail to start are skipped with a warning; an unknown type is an error.
func CreateWriters(defs []config.WriterDef) ([]model.Writer, error) {
	writers := make([]model.Writer, 0, len(defs))
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		factory, ok := registry[def.Type]
		if !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		interval, err := time.ParseDuration(def.SnapshotInterval)
		if err != nil {
			log.Printf("Warning: invalid snapshot_interval for writer type '%s': %v, skipping.", def.Type, err)
			continue
		}

		log.Printf("Creating writer of type '%s' with interval %s", def.Type, interval)
		w, err := factory(def, interval)
		if err != nil {
			log.Printf("Warning: failed to create writer type '%s': %v, skipping.", def.Type, err)
			continue
		}
		writers = append(writers, w)
	}
	return writers, nil
}
