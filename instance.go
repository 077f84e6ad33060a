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
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/identity"
	transporttls "github.com/openziti/transport/v2/tls"
	"github.com/pkg/errors"
)

// Instance assembles a Server and its Host's from a ServerConfig, brings configured mounts and deployments up and
// serves requests until shut down.
type Instance struct {
	Config    *ServerConfig
	Registry  ServletRegistry
	Container ServletContainer
	Metrics   MetricsCollector
	Server    *Server

	hosts       []*Host
	controllers []*DeploymentController

	lock       sync.Mutex
	closed     bool
	httpServer *http.Server
	logWriter  *io.PipeWriter
}

// NewInstance creates an Instance using an InProcessContainer
func NewInstance(config *ServerConfig, registry ServletRegistry) *Instance {
	return &Instance{
		Config:    config,
		Registry:  registry,
		Container: NewServletContainer(),
	}
}

// Build validates the configuration and creates the Server and its (not yet started) Host's
func (i *Instance) Build() error {
	if err := i.Config.Validate(i.Registry); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	i.Server = NewServer(i.Config.Name, i.Container)
	i.Server.SetMetrics(i.Metrics)
	i.Server.SetDefaultHost(i.Config.DefaultHost)

	for _, hostConfig := range i.Config.Hosts {
		var options []HostOption
		if hostConfig.Compression {
			options = append(options, WithCompression())
		}
		i.hosts = append(i.hosts, NewHost(hostConfig.Name, hostConfig.Aliases, i.Server, options...))
	}

	return nil
}

// Deploy starts every host, installs its mounts and creates and starts its deployments
func (i *Instance) Deploy() error {
	for idx, host := range i.hosts {
		hostConfig := i.Config.Hosts[idx]

		if err := host.Start(); err != nil {
			return err
		}

		for _, mount := range hostConfig.Mounts {
			if err := host.RegisterHandler(mount.Path, http.StripPrefix(NormalizePath(mount.Path), http.FileServer(http.Dir(mount.Root)))); err != nil {
				return errors.Wrapf(err, "could not mount %s on host %s", mount.Path, host.Name())
			}
		}

		for _, deploymentConfig := range hostConfig.Deployments {
			if err := i.deploy(host, deploymentConfig); err != nil {
				return err
			}
		}
	}

	return nil
}

func (i *Instance) deploy(host *Host, deploymentConfig *DeploymentConfig) error {
	descriptor, err := deploymentConfig.Descriptor(i.Registry)
	if err != nil {
		return err
	}

	controller, err := host.AddWebDeployment(descriptor)
	if err != nil {
		return err
	}

	if err = controller.Create(); err != nil {
		return err
	}

	i.controllers = append(i.controllers, controller)

	if err = controller.Start(); err != nil {
		var listenerErr *ListenerNotificationError
		if errors.As(err, &listenerErr) {
			pfxlog.Logger().Warnf("deployment %s started with listener failures: %v", descriptor.Name(), err)
			return nil
		}
		return err
	}

	return nil
}

// Serve listens on the configured interface and serves requests until Shutdown is called
func (i *Instance) Serve() error {
	listener, err := i.listen()
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", i.Config.Interface)
	}

	i.lock.Lock()
	if i.closed {
		i.lock.Unlock()
		_ = listener.Close()
		return nil
	}
	i.logWriter = pfxlog.Logger().Writer()
	httpServer := &http.Server{
		Addr:         i.Config.Interface,
		Handler:      i.Server,
		WriteTimeout: i.Config.Options.WriteTimeout,
		ReadTimeout:  i.Config.Options.ReadTimeout,
		IdleTimeout:  i.Config.Options.IdleTimeout,
		ErrorLog:     log.New(i.logWriter, "", 0),
	}
	i.httpServer = httpServer
	i.lock.Unlock()

	pfxlog.Logger().Infof("serving %d host(s) for server %s on %s", len(i.hosts), i.Config.Name, i.Config.Interface)

	if err = httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "error serving")
	}

	return nil
}

// Run builds the instance, deploys everything and serves until Shutdown
func (i *Instance) Run() error {
	if err := i.Build(); err != nil {
		return err
	}
	if err := i.Deploy(); err != nil {
		return err
	}
	return i.Serve()
}

// Shutdown stops serving, stops and destroys deployments in reverse order and stops every host
func (i *Instance) Shutdown(ctx context.Context) {
	logger := pfxlog.Logger()

	i.lock.Lock()
	i.closed = true
	httpServer, logWriter := i.httpServer, i.logWriter
	i.lock.Unlock()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warnf("error shutting down http server: %v", err)
		}
	}

	for idx := len(i.controllers) - 1; idx >= 0; idx-- {
		controller := i.controllers[idx]
		if controller.State() == Started {
			if err := controller.Stop(); err != nil {
				logger.Warnf("error stopping deployment %s: %v", controller.Descriptor().Name(), err)
			}
		}
		if err := controller.Destroy(); err != nil {
			logger.Warnf("error destroying deployment %s: %v", controller.Descriptor().Name(), err)
		}
	}
	i.controllers = nil

	for _, host := range i.hosts {
		host.Stop()
	}

	if logWriter != nil {
		_ = logWriter.Close()
	}
}

// Hosts returns the hosts built from configuration
func (i *Instance) Hosts() []*Host {
	return i.hosts
}

func (i *Instance) listen() (net.Listener, error) {
	if i.Config.IdentityConfig == nil {
		return net.Listen("tcp", i.Config.Interface)
	}

	serverIdentity, err := identity.LoadIdentity(*i.Config.IdentityConfig)
	if err != nil {
		return nil, errors.Wrap(err, "could not load identity")
	}

	if err = serverIdentity.WatchFiles(); err != nil {
		pfxlog.Logger().Warnf("could not enable file watching on server identity: %v", err)
	}

	tlsConfig := serverIdentity.ServerTLSConfig()
	tlsConfig.MinVersion = uint16(i.Config.Options.MinTLSVersion)
	tlsConfig.MaxVersion = uint16(i.Config.Options.MaxTLSVersion)
	tlsConfig.NextProtos = append(tlsConfig.NextProtos, "h2", "http/1.1")

	return transporttls.ListenTLS(i.Config.Interface, i.Config.Name, tlsConfig)
}
