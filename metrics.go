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
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives routing and deployment events from hosts
type MetricsCollector interface {
	// RouteResolved records a request dispatched to the handler at contextPath
	RouteResolved(host, contextPath string)

	// RouteNotFound records a request no context path matched. host is empty when no host matched either.
	RouteNotFound(host string)

	DeploymentStarted(host, deployment string)
	DeploymentStopped(host, deployment string)
}

var noopMetrics MetricsCollector = &noopMetricsCollector{}

type noopMetricsCollector struct{}

func (n *noopMetricsCollector) RouteResolved(host, contextPath string)    {}
func (n *noopMetricsCollector) RouteNotFound(host string)                 {}
func (n *noopMetricsCollector) DeploymentStarted(host, deployment string) {}
func (n *noopMetricsCollector) DeploymentStopped(host, deployment string) {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return noopMetrics
}

// PrometheusMetrics implements MetricsCollector using Prometheus metrics
type PrometheusMetrics struct {
	routed            *prometheus.CounterVec
	notFound          *prometheus.CounterVec
	deploymentStarts  *prometheus.CounterVec
	deploymentStops   *prometheus.CounterVec
	activeDeployments *prometheus.GaugeVec

	registry *prometheus.Registry
}

var _ MetricsCollector = &PrometheusMetrics{}

// NewPrometheusMetrics creates a collector registered on its own prometheus.Registry
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "xhost"
	}

	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
	}

	pm.routed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_routed_total",
			Help:      "Total number of requests dispatched to a context path",
		},
		[]string{"host", "context_path"},
	)

	pm.notFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_not_found_total",
			Help:      "Total number of requests that matched no context path",
		},
		[]string{"host"},
	)

	pm.deploymentStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployment_starts_total",
			Help:      "Total number of deployments started",
		},
		[]string{"host"},
	)

	pm.deploymentStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployment_stops_total",
			Help:      "Total number of deployments stopped",
		},
		[]string{"host"},
	)

	pm.activeDeployments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deployments_active",
			Help:      "Number of deployments currently started and routed",
		},
		[]string{"host"},
	)

	pm.registry.MustRegister(
		pm.routed,
		pm.notFound,
		pm.deploymentStarts,
		pm.deploymentStops,
		pm.activeDeployments,
	)

	return pm
}

// Registry returns the registry the metrics are registered on
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

func (pm *PrometheusMetrics) RouteResolved(host, contextPath string) {
	pm.routed.WithLabelValues(host, contextPath).Inc()
}

func (pm *PrometheusMetrics) RouteNotFound(host string) {
	pm.notFound.WithLabelValues(host).Inc()
}

func (pm *PrometheusMetrics) DeploymentStarted(host, _ string) {
	pm.deploymentStarts.WithLabelValues(host).Inc()
	pm.activeDeployments.WithLabelValues(host).Inc()
}

func (pm *PrometheusMetrics) DeploymentStopped(host, _ string) {
	pm.deploymentStops.WithLabelValues(host).Inc()
	pm.activeDeployments.WithLabelValues(host).Dec()
}
