/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package xhost

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// ServletRegistry describes a registry of servlet type names to ServletFactory registrations. Configuration refers to
// servlets by type name and is resolved against a ServletRegistry into ByClass servlet sources.
type ServletRegistry interface {
	Add(servletType string, factory ServletFactory) error
	Get(servletType string) ServletFactory
	Types() []string
}

// ServletRegistryMap is a basic ServletRegistry implementation backed by a simple mapping of type name to
// ServletFactory
type ServletRegistryMap struct {
	factories map[string]ServletFactory
}

var _ ServletRegistry = NewServletRegistryMap()

// NewServletRegistryMap creates a new ServletRegistryMap
func NewServletRegistryMap() *ServletRegistryMap {
	return &ServletRegistryMap{
		factories: map[string]ServletFactory{},
	}
}

// Add adds a factory to the registry. Errors if a previous factory with the same type is registered.
func (registry *ServletRegistryMap) Add(servletType string, factory ServletFactory) error {
	logrus.Debugf("adding servlet factory with type: %v", servletType)
	if factory == nil {
		return fmt.Errorf("nil factory for servlet type [%s]", servletType)
	}

	if _, ok := registry.factories[servletType]; ok {
		return fmt.Errorf("servlet type [%s] already registered", servletType)
	}

	registry.factories[servletType] = factory

	return nil
}

// Get retrieves a factory based on a type or nil if no factory for the type is registered
func (registry *ServletRegistryMap) Get(servletType string) ServletFactory {
	return registry.factories[servletType]
}

// Types returns the registered type names, sorted
func (registry *ServletRegistryMap) Types() []string {
	var types []string
	for servletType := range registry.factories {
		types = append(types, servletType)
	}
	sort.Strings(types)
	return types
}
