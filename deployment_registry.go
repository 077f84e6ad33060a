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
	"sort"

	"github.com/openziti/foundation/v2/concurrenz"
	"github.com/sirupsen/logrus"
)

// DeploymentRegistry tracks the descriptors currently deployed on a Host. Descriptors are tracked by identity, not by
// value.
type DeploymentRegistry struct {
	deployments concurrenz.CopyOnWriteMap[*DeploymentDescriptor, bool]
}

// NewDeploymentRegistry creates an empty DeploymentRegistry
func NewDeploymentRegistry() *DeploymentRegistry {
	return &DeploymentRegistry{}
}

// Add adds a descriptor. Adding a descriptor twice has no additional effect.
func (registry *DeploymentRegistry) Add(descriptor *DeploymentDescriptor) {
	logrus.Debugf("adding deployment: %s", descriptor.Name())
	registry.deployments.Put(descriptor, true)
}

// Remove removes a descriptor if present
func (registry *DeploymentRegistry) Remove(descriptor *DeploymentDescriptor) {
	if !registry.deployments.Get(descriptor) {
		return
	}
	logrus.Debugf("removing deployment: %s", descriptor.Name())
	registry.deployments.Delete(descriptor)
}

// Contains reports whether the descriptor is currently registered
func (registry *DeploymentRegistry) Contains(descriptor *DeploymentDescriptor) bool {
	return registry.deployments.Get(descriptor)
}

// FindByContextPath returns the registered descriptor deployed at contextPath or nil
func (registry *DeploymentRegistry) FindByContextPath(contextPath string) *DeploymentDescriptor {
	contextPath = NormalizePath(contextPath)
	for descriptor, present := range registry.deployments.AsMap() {
		if present && descriptor.Path() == contextPath {
			return descriptor
		}
	}
	return nil
}

// Snapshot returns the registered descriptors as of some point during the call, ordered by context path
func (registry *DeploymentRegistry) Snapshot() []*DeploymentDescriptor {
	var result []*DeploymentDescriptor
	for descriptor, present := range registry.deployments.AsMap() {
		if present {
			result = append(result, descriptor)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Path() < result[j].Path()
	})
	return result
}

// Len returns the number of registered descriptors
func (registry *DeploymentRegistry) Len() int {
	return len(registry.Snapshot())
}
