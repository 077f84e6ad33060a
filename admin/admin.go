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

// Package admin exposes a read-only management API over the hosts of an xhost.Server.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/xhost"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HostInfo struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases"`
	Contexts []string `json:"contexts"`
}

type DeploymentInfo struct {
	Name         string        `json:"name"`
	ContextPath  string        `json:"contextPath"`
	ResourceRoot string        `json:"resourceRoot,omitempty"`
	Servlets     []ServletInfo `json:"servlets,omitempty"`
}

type ServletInfo struct {
	Name          string   `json:"name"`
	UrlMappings   []string `json:"urlMappings,omitempty"`
	LoadOnStartup bool     `json:"loadOnStartup"`
}

// NewHandler creates the admin API for server. When gatherer is not nil its metrics are exposed at /metrics.
func NewHandler(server *xhost.Server, gatherer prometheus.Gatherer) http.Handler {
	api := &adminApi{server: server}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/hosts", api.listHosts)
	router.Route("/hosts/{host}", func(r chi.Router) {
		r.Get("/", api.getHost)
		r.Get("/contexts", api.listContexts)
		r.Get("/deployments", api.listDeployments)
	})

	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return router
}

type adminApi struct {
	server *xhost.Server
}

func (api *adminApi) listHosts(writer http.ResponseWriter, _ *http.Request) {
	result := []HostInfo{}
	for _, host := range api.server.Hosts() {
		result = append(result, toHostInfo(host))
	}
	writeJson(writer, http.StatusOK, result)
}

func (api *adminApi) getHost(writer http.ResponseWriter, request *http.Request) {
	if host := api.host(writer, request); host != nil {
		writeJson(writer, http.StatusOK, toHostInfo(host))
	}
}

func (api *adminApi) listContexts(writer http.ResponseWriter, request *http.Request) {
	if host := api.host(writer, request); host != nil {
		writeJson(writer, http.StatusOK, toHostInfo(host).Contexts)
	}
}

func (api *adminApi) listDeployments(writer http.ResponseWriter, request *http.Request) {
	host := api.host(writer, request)
	if host == nil {
		return
	}

	result := []DeploymentInfo{}
	for _, descriptor := range host.GetDeploymentInfo() {
		info := DeploymentInfo{
			Name:         descriptor.Name(),
			ContextPath:  descriptor.Path(),
			ResourceRoot: descriptor.ResourceRoot,
		}
		for _, servlet := range descriptor.Servlets {
			info.Servlets = append(info.Servlets, ServletInfo{
				Name:          servlet.Name,
				UrlMappings:   servlet.UrlMappings,
				LoadOnStartup: servlet.LoadOnStartup,
			})
		}
		result = append(result, info)
	}

	writeJson(writer, http.StatusOK, result)
}

func (api *adminApi) host(writer http.ResponseWriter, request *http.Request) *xhost.Host {
	name := chi.URLParam(request, "host")
	host := api.server.Host(name)
	if host == nil {
		writeJson(writer, http.StatusNotFound, map[string]string{"error": "no host named " + name})
	}
	return host
}

func toHostInfo(host *xhost.Host) HostInfo {
	contexts := host.GetContexts()
	if contexts == nil {
		contexts = []string{}
	}
	return HostInfo{
		Name:     host.Name(),
		Aliases:  host.Aliases(),
		Contexts: contexts,
	}
}

func writeJson(writer http.ResponseWriter, status int, value interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		pfxlog.Logger().Errorf("could not write admin response: %v", err)
	}
}
