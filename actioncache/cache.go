//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package actioncache models the cache of executed actions keyed by
// output exec path. The focuser only ever evicts from it; the build
// system reads and writes entries between invocations.
package actioncache

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tomal07/bazel/usecases/monitoring"
)

// Cache is the surface the focuser depends on. Remove must be safe for
// concurrent use and idempotent.
type Cache interface {
	Remove(execPath string)
}

// InMemory is a mutex-guarded map store, sufficient for a single-process
// build server.
type InMemory struct {
	sync.Mutex

	entries map[string]interface{}
	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics
}

type Config struct {
	Logger            logrus.FieldLogger
	PrometheusMetrics *monitoring.PrometheusMetrics
}

func NewInMemory(cfg Config) *InMemory {
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		logger = l
	}

	return &InMemory{
		entries: map[string]interface{}{},
		logger:  logger.WithField("component", "action_cache"),
		metrics: cfg.PrometheusMetrics,
	}
}

func (c *InMemory) Put(execPath string, entry interface{}) {
	c.Lock()
	defer c.Unlock()
	c.entries[execPath] = entry
}

func (c *InMemory) Get(execPath string) (interface{}, bool) {
	c.Lock()
	defer c.Unlock()
	entry, ok := c.entries[execPath]
	return entry, ok
}

func (c *InMemory) Remove(execPath string) {
	c.Lock()
	_, existed := c.entries[execPath]
	delete(c.entries, execPath)
	c.Unlock()

	if existed && c.metrics != nil {
		c.metrics.ActionCacheEvictions.Inc()
	}
}

func (c *InMemory) Len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.entries)
}
