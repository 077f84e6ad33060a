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

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/xhost"
	"github.com/openziti/xhost/admin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var configFile string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the hosts defined in a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logrus.InfoLevel
			if verbose {
				level = logrus.DebugLevel
			}
			pfxlog.GlobalInit(level, pfxlog.DefaultOptions())

			return serve(configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "xhost.yml", "Path to the configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func serve(configFile string) error {
	log := pfxlog.Logger()

	config, err := xhost.LoadServerConfig(configFile)
	if err != nil {
		return err
	}

	metrics := xhost.NewPrometheusMetrics("xhost")

	instance := xhost.NewInstance(config, builtinServlets())
	instance.Metrics = metrics

	if err = instance.Build(); err != nil {
		return err
	}

	instance.Server.Notifier().Subscribe(&xhost.DeploymentListenerFuncs{
		OnStart: func(descriptor *xhost.DeploymentDescriptor, host *xhost.Host) error {
			log.Infof("deployment %s started on host %s at %s", descriptor.Name(), host.Name(), descriptor.Path())
			return nil
		},
		OnStop: func(descriptor *xhost.DeploymentDescriptor, host *xhost.Host) error {
			log.Infof("deployment %s stopped on host %s", descriptor.Name(), host.Name())
			return nil
		},
	})

	if err = instance.Deploy(); err != nil {
		shutdown(instance, nil)
		return err
	}

	var adminServer *http.Server
	if config.AdminInterface != "" {
		adminServer = &http.Server{
			Addr:              config.AdminInterface,
			Handler:           admin.NewHandler(instance.Server, metrics.Registry()),
			ReadHeaderTimeout: config.Options.ReadTimeout,
		}
		go func() {
			log.Infof("admin api listening on %s", config.AdminInterface)
			if err := adminServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("admin api stopped: %v", err)
			}
		}()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- instance.Serve()
	}()

	select {
	case sig := <-signals:
		log.Infof("received %s, shutting down", sig)
		shutdown(instance, adminServer)
		return <-serveErr
	case err = <-serveErr:
		shutdown(instance, adminServer)
		return err
	}
}

func shutdown(instance *xhost.Instance, adminServer *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()

	if adminServer != nil {
		_ = adminServer.Shutdown(ctx)
	}
	instance.Shutdown(ctx)
}
