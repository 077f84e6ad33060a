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
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

// HostOption customizes a Host at construction
type HostOption func(host *Host)

// WithCompression enables brotli/gzip response compression in the host's root handler
func WithCompression() HostOption {
	return func(host *Host) {
		host.compression = true
	}
}

// WithPanicHandler replaces the default panic logging of the host's root handler
func WithPanicHandler(onPanic func(writer http.ResponseWriter, request *http.Request, panicVal interface{})) HostOption {
	return func(host *Host) {
		host.OnHandlerPanic = onPanic
	}
}

// Host is a named virtual host. It owns a PathTable that routes requests to deployments and raw handlers by context
// path, and the DeploymentRegistry of descriptors currently deployed on it.
type Host struct {
	defaultHandlerChain
	OnHandlerPanic func(writer http.ResponseWriter, request *http.Request, panicVal interface{})

	name        string
	aliases     map[string]struct{}
	server      *Server
	compression bool

	pathTable   *PathTable
	deployments *DeploymentRegistry

	//serializes route installation so the duplicate context check and the install are one step
	deploymentLock sync.Mutex

	started     atomic.Bool
	rootHandler http.Handler
}

// NewHost creates a Host. The alias set always contains name. server may be nil for a host that is used standalone, in
// which case deployments cannot be created and no listeners are notified.
func NewHost(name string, aliases []string, server *Server, options ...HostOption) *Host {
	host := &Host{
		name:        name,
		aliases:     map[string]struct{}{strings.ToLower(name): {}},
		server:      server,
		pathTable:   NewPathTable(),
		deployments: NewDeploymentRegistry(),
	}

	for _, alias := range aliases {
		host.aliases[strings.ToLower(alias)] = struct{}{}
	}

	for _, option := range options {
		option(host)
	}

	if server != nil {
		host.defaultHandlerChain.parent = server
	}

	host.rootHandler = host.wrapHandler(http.HandlerFunc(host.dispatch))

	return host
}

func (host *Host) Name() string {
	return host.name
}

// Aliases returns all names the host answers to, including its name, sorted
func (host *Host) Aliases() []string {
	var result []string
	for alias := range host.aliases {
		result = append(result, alias)
	}
	sort.Strings(result)
	return result
}

// HasAlias reports whether the host answers to the given name (case-insensitive)
func (host *Host) HasAlias(alias string) bool {
	_, ok := host.aliases[strings.ToLower(alias)]
	return ok
}

func (host *Host) Server() *Server {
	return host.server
}

// Container returns the ServletContainer deployments on this host are created in
func (host *Host) Container() ServletContainer {
	if host.server == nil {
		return nil
	}
	return host.server.Container()
}

// Start puts the root handler in front of the PathTable and registers the host with its server. It must only be
// called once.
func (host *Host) Start() error {
	if host.server != nil {
		if err := host.server.RegisterHost(host); err != nil {
			return errors.Wrapf(err, "could not start host %s", host.name)
		}
	}
	host.started.Store(true)
	pfxlog.Logger().Infof("starting host %s", host.name)
	return nil
}

// Stop detaches the host from its server and drops every PathTable entry, whether or not the deployments behind them
// were stopped.
func (host *Host) Stop() {
	if host.server != nil {
		host.server.UnregisterHost(host)
	}
	host.pathTable.Clear()
	pfxlog.Logger().Infof("stopping host %s", host.name)
}

// AddWebDeployment returns a DeploymentController for descriptor. Nothing is created or started until the
// controller's lifecycle methods are called. A descriptor whose context path is already deployed on this host is
// rejected with a DuplicateContext DeploymentError.
func (host *Host) AddWebDeployment(descriptor *DeploymentDescriptor) (*DeploymentController, error) {
	if descriptor == nil {
		return nil, errors.New("nil deployment descriptor")
	}

	if err := descriptor.Validate(); err != nil {
		return nil, newDeploymentError(CreateFailed, descriptor, err)
	}

	if existing := host.deployments.FindByContextPath(descriptor.Path()); existing != nil {
		return nil, newDeploymentError(DuplicateContext, descriptor, errors.Errorf("context path already deployed by [%s]", existing.Name()))
	}

	return newDeploymentController(host, descriptor), nil
}

// RegisterHandler installs handler at path directly, bypassing the deployment lifecycle
func (host *Host) RegisterHandler(path string, handler http.Handler) error {
	return host.pathTable.AddPath(path, handler)
}

// UnregisterHandler removes whatever is installed at path
func (host *Host) UnregisterHandler(path string) {
	host.pathTable.RemovePath(path)
}

// GetContexts returns a snapshot of the context paths currently routed by this host
func (host *Host) GetContexts() []string {
	return host.pathTable.Paths()
}

// GetDeploymentInfo returns a snapshot of the descriptors currently deployed on this host
func (host *Host) GetDeploymentInfo() []*DeploymentDescriptor {
	return host.deployments.Snapshot()
}

// Resolve looks up the handler for requestPath without serving it
func (host *Host) Resolve(requestPath string) (handler http.Handler, contextPath string, found bool) {
	return host.pathTable.Resolve(requestPath)
}

// RootHandler is the http.Handler the transport should hand requests for this host to
func (host *Host) RootHandler() http.Handler {
	return host.rootHandler
}

func (host *Host) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	host.rootHandler.ServeHTTP(writer, request)
}

func (host *Host) dispatch(writer http.ResponseWriter, request *http.Request) {
	if !host.started.Load() {
		serveDefault(host, writer, request)
		return
	}

	if cleaned := CleanRequestPath(request.URL.Path); cleaned != request.URL.Path {
		request = withPath(request, cleaned)
	}

	handler, contextPath, found := host.pathTable.Resolve(request.URL.Path)
	if !found {
		host.metrics().RouteNotFound(host.name)
		serveDefault(host, writer, request)
		return
	}

	host.metrics().RouteResolved(host.name, contextPath)

	ctx := context.WithValue(request.Context(), HostContextKey, host)
	ctx = context.WithValue(ctx, ContextPathContextKey, contextPath)
	handler.ServeHTTP(writer, request.WithContext(ctx))
}

func withPath(request *http.Request, requestPath string) *http.Request {
	rewritten := new(http.Request)
	*rewritten = *request
	rewritten.URL = new(url.URL)
	*rewritten.URL = *request.URL
	rewritten.URL.Path = requestPath
	rewritten.URL.RawPath = ""
	return rewritten
}

func (host *Host) routeDeployment(descriptor *DeploymentDescriptor, handler http.Handler) error {
	host.deploymentLock.Lock()
	defer host.deploymentLock.Unlock()

	if existing := host.deployments.FindByContextPath(descriptor.Path()); existing != nil && existing != descriptor {
		return newDeploymentError(DuplicateContext, descriptor, errors.Errorf("context path already deployed by [%s]", existing.Name()))
	}

	if err := host.pathTable.AddPath(descriptor.Path(), handler); err != nil {
		return newDeploymentError(StartFailed, descriptor, err)
	}

	host.deployments.Add(descriptor)
	pfxlog.Logger().WithField("host", host.name).Infof("registered web context: %s", descriptor.Path())

	return nil
}

func (host *Host) unrouteDeployment(descriptor *DeploymentDescriptor) {
	host.deploymentLock.Lock()
	defer host.deploymentLock.Unlock()

	host.pathTable.RemovePath(descriptor.Path())
	host.deployments.Remove(descriptor)
	pfxlog.Logger().WithField("host", host.name).Infof("unregistered web context: %s", descriptor.Path())
}

func (host *Host) fireDeploymentStart(descriptor *DeploymentDescriptor) error {
	if host.server == nil {
		return nil
	}
	host.metrics().DeploymentStarted(host.name, descriptor.Name())
	return host.server.Notifier().NotifyStart(descriptor, host)
}

func (host *Host) fireDeploymentStop(descriptor *DeploymentDescriptor) error {
	if host.server == nil {
		return nil
	}
	host.metrics().DeploymentStopped(host.name, descriptor.Name())
	return host.server.Notifier().NotifyStop(descriptor, host)
}

func (host *Host) metrics() MetricsCollector {
	if host.server == nil {
		return noopMetrics
	}
	return host.server.Metrics()
}
