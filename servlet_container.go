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
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/concurrenz"
	"github.com/pkg/errors"
)

// InProcessContainer is a ServletContainer that serves deployments from this process. Each ServletSpec becomes one
// handler on a per-deployment http.ServeMux, url mappings are translated as:
//
//	/        default servlet
//	/path/*  everything below /path
//	/path    exactly /path
//
// If no servlet claims "/" and the descriptor has a ResourceRoot, files below ResourceRoot are served as the default.
type InProcessContainer struct {
	lock        sync.Mutex
	deployments concurrenz.CopyOnWriteMap[string, *inProcessDeployment]
}

var _ ServletContainer = &InProcessContainer{}

// NewServletContainer creates an empty InProcessContainer
func NewServletContainer() *InProcessContainer {
	return &InProcessContainer{}
}

// AddDeployment validates the descriptor and reserves its deployment name. Names must be unique within the container.
func (container *InProcessContainer) AddDeployment(descriptor *DeploymentDescriptor) (DeploymentManager, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}

	container.lock.Lock()
	defer container.lock.Unlock()

	if existing := container.deployments.Get(descriptor.Name()); existing != nil {
		return nil, errors.Errorf("deployment named [%s] already exists at context path [%s]", descriptor.Name(), existing.descriptor.Path())
	}

	deployment := &inProcessDeployment{
		descriptor: descriptor,
	}
	container.deployments.Put(descriptor.Name(), deployment)

	return deployment, nil
}

// RemoveDeployment releases the deployment name. The deployment must have been undeployed.
func (container *InProcessContainer) RemoveDeployment(deploymentName string) error {
	container.lock.Lock()
	defer container.lock.Unlock()

	deployment := container.deployments.Get(deploymentName)
	if deployment == nil {
		return errors.Errorf("no deployment named [%s]", deploymentName)
	}

	if deployment.isDeployed() {
		return errors.Errorf("deployment [%s] must be undeployed before removal", deploymentName)
	}

	container.deployments.Delete(deploymentName)
	return nil
}

// Deployments returns the names of all deployments known to the container
func (container *InProcessContainer) Deployments() []string {
	var names []string
	for name := range container.deployments.AsMap() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type deploymentPhase int

const (
	phaseAdded deploymentPhase = iota
	phaseDeployed
	phaseStarted
	phaseStopped
)

type inProcessDeployment struct {
	descriptor *DeploymentDescriptor

	lock     sync.RWMutex
	phase    deploymentPhase
	mux      *http.ServeMux
	servlets []*servletHolder
	inFlight sync.WaitGroup
}

var _ DeploymentManager = &inProcessDeployment{}

func (deployment *inProcessDeployment) isDeployed() bool {
	deployment.lock.RLock()
	defer deployment.lock.RUnlock()
	return deployment.phase != phaseAdded
}

func (deployment *inProcessDeployment) Deploy() error {
	deployment.lock.Lock()
	defer deployment.lock.Unlock()

	if deployment.phase != phaseAdded {
		return errors.Errorf("deployment [%s] is already deployed", deployment.descriptor.Name())
	}

	mux, servlets, err := buildServletMux(deployment.descriptor)
	if err != nil {
		return err
	}

	deployment.mux = mux
	deployment.servlets = servlets
	deployment.phase = phaseDeployed
	return nil
}

func (deployment *inProcessDeployment) Start() (http.Handler, error) {
	deployment.lock.Lock()
	defer deployment.lock.Unlock()

	if deployment.phase != phaseDeployed {
		return nil, errors.Errorf("deployment [%s] is not in a startable state", deployment.descriptor.Name())
	}

	for _, servlet := range deployment.servlets {
		if servlet.spec.LoadOnStartup {
			if _, err := servlet.get(); err != nil {
				return nil, errors.Wrapf(err, "could not load servlet [%s] on startup", servlet.spec.Name)
			}
		}
	}

	deployment.phase = phaseStarted
	return http.HandlerFunc(deployment.serve), nil
}

func (deployment *inProcessDeployment) Stop() error {
	deployment.lock.Lock()
	if deployment.phase != phaseStarted {
		deployment.lock.Unlock()
		return errors.Errorf("deployment [%s] is not started", deployment.descriptor.Name())
	}
	deployment.phase = phaseStopped
	deployment.lock.Unlock()

	//no new requests get past serve() from here on, wait for the ones already inside
	deployment.inFlight.Wait()
	return nil
}

func (deployment *inProcessDeployment) Undeploy() error {
	deployment.lock.Lock()
	defer deployment.lock.Unlock()

	switch deployment.phase {
	case phaseStarted:
		return errors.Errorf("deployment [%s] must be stopped before undeploying", deployment.descriptor.Name())
	case phaseAdded:
		return errors.Errorf("deployment [%s] was never deployed", deployment.descriptor.Name())
	}

	deployment.mux = nil
	deployment.servlets = nil
	deployment.phase = phaseAdded
	return nil
}

func (deployment *inProcessDeployment) serve(writer http.ResponseWriter, request *http.Request) {
	deployment.lock.RLock()
	if deployment.phase != phaseStarted {
		deployment.lock.RUnlock()
		http.Error(writer, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	mux := deployment.mux
	deployment.inFlight.Add(1)
	deployment.lock.RUnlock()

	defer deployment.inFlight.Done()

	mux.ServeHTTP(writer, stripContextPath(request, deployment.descriptor.Path()))
}

func stripContextPath(request *http.Request, contextPath string) *http.Request {
	if contextPath == "/" {
		return request
	}

	rest := strings.TrimPrefix(request.URL.Path, contextPath)
	if rest == "" {
		rest = "/"
	}

	return withPath(request, rest)
}

// servletHolder instantiates ByClass servlets once, either at start or on first use
type servletHolder struct {
	spec    *ServletSpec
	once    sync.Once
	handler http.Handler
	err     error
}

func (holder *servletHolder) get() (http.Handler, error) {
	holder.once.Do(func() {
		switch source := holder.spec.Source.(type) {
		case ByInstance:
			holder.handler = source.Instance
		case ByClass:
			holder.handler, holder.err = source.Factory(holder.spec.InitParams)
			if holder.err == nil && holder.handler == nil {
				holder.err = errors.Errorf("factory for servlet [%s] returned a nil handler", holder.spec.Name)
			}
		}
	})
	return holder.handler, holder.err
}

func (holder *servletHolder) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	handler, err := holder.get()
	if err != nil {
		pfxlog.Logger().WithField("servlet", holder.spec.Name).Errorf("servlet unavailable: %v", err)
		http.Error(writer, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	handler.ServeHTTP(writer, request)
}

func buildServletMux(descriptor *DeploymentDescriptor) (mux *http.ServeMux, servlets []*servletHolder, err error) {
	mux = http.NewServeMux()
	patterns := map[string]string{}

	defer func() {
		if panicVal := recover(); panicVal != nil {
			mux, servlets, err = nil, nil, fmt.Errorf("could not register url mappings for deployment [%s]: %v", descriptor.Name(), panicVal)
		}
	}()

	for _, spec := range descriptor.Servlets {
		holder := &servletHolder{spec: spec}
		servlets = append(servlets, holder)

		for _, mapping := range spec.UrlMappings {
			pattern, err := mappingToPattern(mapping)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "servlet [%s]", spec.Name)
			}
			if owner, ok := patterns[pattern]; ok {
				return nil, nil, errors.Errorf("url mapping [%s] of servlet [%s] is already mapped by servlet [%s]", mapping, spec.Name, owner)
			}
			patterns[pattern] = spec.Name
			mux.Handle(pattern, holder)
		}
	}

	if _, ok := patterns["/"]; !ok && descriptor.ResourceRoot != "" {
		mux.Handle("/", http.FileServer(http.Dir(descriptor.ResourceRoot)))
	}

	return mux, servlets, nil
}

func mappingToPattern(mapping string) (string, error) {
	if !strings.HasPrefix(mapping, "/") {
		return "", errors.Errorf("unsupported url mapping [%s], must start with /", mapping)
	}
	if strings.ContainsAny(mapping, "{} \t") {
		return "", errors.Errorf("unsupported url mapping [%s]", mapping)
	}

	if mapping == "/" || mapping == "/*" {
		return "/", nil
	}

	if strings.HasSuffix(mapping, "/*") {
		return strings.TrimSuffix(mapping, "*"), nil
	}

	if strings.Contains(mapping, "*") {
		return "", errors.Errorf("unsupported url mapping [%s], wildcards are only allowed as a trailing /*", mapping)
	}

	return mapping, nil
}
