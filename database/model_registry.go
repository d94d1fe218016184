/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"reflect"
	"sort"
	"sync"
)

// SQLModel represents a database model whose table is created on migration.
// Instance should return a struct pointer compatible with Bun, and Priority
// controls ordering (lower values first).
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry struct {
	models []SQLModel
	mutex  sync.RWMutex
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make([]SQLModel, 0)}
}

func (r *ModelRegistry) Register(model SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.models = append(r.models, model)
}

// Contains reports whether a model of the same type as instance is
// registered.
func (r *ModelRegistry) Contains(instance interface{}) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	want := reflect.TypeOf(instance)
	for _, model := range r.models {
		if reflect.TypeOf(model.Instance()) == want {
			return true
		}
	}
	return false
}

// Models returns the registered models sorted by ascending priority; ties
// keep registration order.
func (r *ModelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

// Instances returns the struct pointers of Models, in the same order.
func (r *ModelRegistry) Instances() []interface{} {
	models := r.Models()
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}

type modelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct instance and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &modelAdapter{instance: instance, priority: priority}
}

func (a *modelAdapter) Instance() interface{} { return a.instance }

func (a *modelAdapter) Priority() int { return a.priority }
