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
	"net/http"

	"github.com/pkg/errors"
)

// DeploymentDescriptor is an already resolved web deployment: where it is mounted, what it serves and which servlets
// it registers. A descriptor must not be modified after it has been passed to Host.AddWebDeployment.
type DeploymentDescriptor struct {
	DeploymentName string
	ContextPath    string
	ClassLoader    interface{} //opaque, owned by the caller
	ResourceRoot   string
	Servlets       []*ServletSpec
}

// Name returns the deployment name, defaulting to the context path when no name was given
func (d *DeploymentDescriptor) Name() string {
	if d.DeploymentName == "" {
		return d.Path()
	}
	return d.DeploymentName
}

// Path returns the normalized context path
func (d *DeploymentDescriptor) Path() string {
	return NormalizePath(d.ContextPath)
}

// Validate checks the descriptor for problems that would prevent it from ever being routed
func (d *DeploymentDescriptor) Validate() error {
	if err := validatePath(d.Path()); err != nil {
		return errors.Wrapf(err, "invalid context path [%s]", d.ContextPath)
	}

	names := map[string]struct{}{}
	for i, servlet := range d.Servlets {
		if servlet == nil {
			return errors.Errorf("servlet at index [%d] is nil", i)
		}
		if err := servlet.Validate(); err != nil {
			return errors.Wrapf(err, "invalid servlet at index [%d]", i)
		}
		if _, ok := names[servlet.Name]; ok {
			return errors.Errorf("duplicate servlet name [%s]", servlet.Name)
		}
		names[servlet.Name] = struct{}{}
	}

	return nil
}

// ServletFactory instantiates a servlet handler from its init params
type ServletFactory func(initParams map[string]string) (http.Handler, error)

// ServletSource describes where a servlet's handler comes from: ByClass or ByInstance.
type ServletSource interface {
	servletSource()
}

// ByClass builds the servlet from a factory, at start when LoadOnStartup is set, otherwise on first request
type ByClass struct {
	Factory ServletFactory
}

func (ByClass) servletSource() {}

// ByInstance uses an already built handler
type ByInstance struct {
	Instance http.Handler
}

func (ByInstance) servletSource() {}

// ServletSpec is a single servlet registration within a DeploymentDescriptor
type ServletSpec struct {
	Name          string
	Source        ServletSource
	UrlMappings   []string
	InitParams    map[string]string
	LoadOnStartup bool
}

// Validate checks that the servlet has a name and a usable source
func (s *ServletSpec) Validate() error {
	if s.Name == "" {
		return errors.New("servlet name must not be empty")
	}

	switch source := s.Source.(type) {
	case ByClass:
		if source.Factory == nil {
			return errors.Errorf("servlet [%s] has a nil factory", s.Name)
		}
	case ByInstance:
		if source.Instance == nil {
			return errors.Errorf("servlet [%s] has a nil instance", s.Name)
		}
	default:
		return errors.Errorf("servlet [%s] has no source", s.Name)
	}

	return nil
}
