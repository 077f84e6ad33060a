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
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/concurrenz"
	"github.com/pkg/errors"
)

// Server is the enclosing server of a set of Host's. It owns the deployment listeners, the ServletContainer
// deployments are created in and the virtual host table used to pick a Host for an incoming request.
type Server struct {
	defaultHandlerChain

	name      string
	container ServletContainer
	notifier  *Notifier
	metrics   MetricsCollector

	lock        sync.Mutex
	hosts       concurrenz.CopyOnWriteMap[string, *Host]
	aliases     concurrenz.CopyOnWriteMap[string, *Host]
	defaultHost string
}

// NewServer creates a Server deploying into container
func NewServer(name string, container ServletContainer) *Server {
	return &Server{
		name:      name,
		container: container,
		notifier:  NewNotifier(),
		metrics:   noopMetrics,
	}
}

func (server *Server) Name() string {
	return server.name
}

func (server *Server) Container() ServletContainer {
	return server.container
}

// Notifier returns the set of deployment listeners shared by all hosts of this server
func (server *Server) Notifier() *Notifier {
	return server.notifier
}

func (server *Server) Metrics() MetricsCollector {
	return server.metrics
}

// SetMetrics replaces the MetricsCollector, nil restores the no-op collector. Call before hosts are started.
func (server *Server) SetMetrics(metrics MetricsCollector) {
	if metrics == nil {
		metrics = noopMetrics
	}
	server.metrics = metrics
}

// SetDefaultHost names the host that serves requests whose Host header matches no alias
func (server *Server) SetDefaultHost(name string) {
	server.lock.Lock()
	defer server.lock.Unlock()
	server.defaultHost = name
}

// RegisterHost makes host reachable by its name and aliases. Names and aliases must be unique across the server.
func (server *Server) RegisterHost(host *Host) error {
	server.lock.Lock()
	defer server.lock.Unlock()

	if existing := server.hosts.Get(host.Name()); existing != nil {
		return errors.Errorf("host [%s] already registered", host.Name())
	}

	for _, alias := range host.Aliases() {
		if existing := server.aliases.Get(alias); existing != nil {
			return errors.Errorf("alias [%s] of host [%s] already used by host [%s]", alias, host.Name(), existing.Name())
		}
	}

	server.hosts.Put(host.Name(), host)
	for _, alias := range host.Aliases() {
		server.aliases.Put(alias, host)
	}

	pfxlog.Logger().WithField("server", server.name).Debugf("registered host %s with aliases %v", host.Name(), host.Aliases())
	return nil
}

// UnregisterHost removes host. Hosts that are not registered are ignored.
func (server *Server) UnregisterHost(host *Host) {
	server.lock.Lock()
	defer server.lock.Unlock()

	if server.hosts.Get(host.Name()) != host {
		return
	}

	server.hosts.Delete(host.Name())
	for _, alias := range host.Aliases() {
		if server.aliases.Get(alias) == host {
			server.aliases.Delete(alias)
		}
	}

	pfxlog.Logger().WithField("server", server.name).Debugf("unregistered host %s", host.Name())
}

// Host returns the registered host with the given name or nil
func (server *Server) Host(name string) *Host {
	return server.hosts.Get(name)
}

// Hosts returns the registered hosts ordered by name
func (server *Server) Hosts() []*Host {
	var result []*Host
	for _, host := range server.hosts.AsMap() {
		if host != nil {
			result = append(result, host)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// HostFor selects the host for a request's Host header, falling back to the default host
func (server *Server) HostFor(hostHeader string) *Host {
	hostname := hostHeader
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		hostname = h
	}

	if host := server.aliases.Get(strings.ToLower(hostname)); host != nil {
		return host
	}

	server.lock.Lock()
	defaultHost := server.defaultHost
	server.lock.Unlock()

	if defaultHost != "" {
		return server.hosts.Get(defaultHost)
	}
	return nil
}

func (server *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if host := server.HostFor(request.Host); host != nil {
		host.ServeHTTP(writer, request)
		return
	}

	server.metrics.RouteNotFound("")
	serveDefault(server, writer, request)
}

// DefaultHandlerProvider supplies the handler for requests a Host has no context path for, or a Server has no host
// for. A Host without a default handler of its own uses its Server's.
type DefaultHandlerProvider interface {
	DefaultHandler() http.Handler
	SetDefaultHandler(handler http.Handler)
}

type defaultHandlerChain struct {
	defaultLock    sync.RWMutex
	defaultHandler http.Handler
	parent         DefaultHandlerProvider
}

var _ DefaultHandlerProvider = &defaultHandlerChain{}

func (chain *defaultHandlerChain) DefaultHandler() http.Handler {
	chain.defaultLock.RLock()
	handler := chain.defaultHandler
	chain.defaultLock.RUnlock()

	if handler == nil && chain.parent != nil {
		return chain.parent.DefaultHandler()
	}
	return handler
}

// SetDefaultHandler replaces the default handler, nil falls back to the parent (or an empty 404)
func (chain *defaultHandlerChain) SetDefaultHandler(handler http.Handler) {
	chain.defaultLock.Lock()
	defer chain.defaultLock.Unlock()
	chain.defaultHandler = handler
}

func serveDefault(provider DefaultHandlerProvider, writer http.ResponseWriter, request *http.Request) {
	if handler := provider.DefaultHandler(); handler != nil {
		handler.ServeHTTP(writer, request)
		return
	}
	writer.WriteHeader(http.StatusNotFound)
}
