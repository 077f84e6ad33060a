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
	"sync"

	"github.com/google/uuid"
	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/openziti/xhost"

var tracer = otel.Tracer(TracerName)

type DeploymentState int

const (
	Undeployed DeploymentState = iota
	Created
	Started
	Stopped
	Destroyed
)

func (state DeploymentState) String() string {
	switch state {
	case Undeployed:
		return "Undeployed"
	case Created:
		return "Created"
	case Started:
		return "Started"
	case Stopped:
		return "Stopped"
	case Destroyed:
		return "Destroyed"
	}
	return "Unknown"
}

// DeploymentController drives one deployment through Undeployed -> Created -> Started -> Stopped -> Destroyed on the
// Host that produced it. A stopped deployment cannot be started again, a new controller has to be requested from the
// Host instead.
type DeploymentController struct {
	id         string
	host       *Host
	descriptor *DeploymentDescriptor

	lock      sync.Mutex
	state     DeploymentState
	manager   DeploymentManager
	handler   http.Handler
	routed    bool
	announced bool
}

func newDeploymentController(host *Host, descriptor *DeploymentDescriptor) *DeploymentController {
	return &DeploymentController{
		id:         uuid.NewString(),
		host:       host,
		descriptor: descriptor,
		state:      Undeployed,
	}
}

// ID returns a unique identifier for this controller, used in logs and traces
func (controller *DeploymentController) ID() string {
	return controller.id
}

func (controller *DeploymentController) Host() *Host {
	return controller.host
}

func (controller *DeploymentController) Descriptor() *DeploymentDescriptor {
	return controller.descriptor
}

func (controller *DeploymentController) State() DeploymentState {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.state
}

// Routed reports whether the deployment's handler is currently installed in the host's PathTable. A Started
// deployment that is not routed failed installation and must be stopped and destroyed by the caller.
func (controller *DeploymentController) Routed() bool {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.routed
}

// Handler returns the handler produced by Start, or nil when the deployment is not started
func (controller *DeploymentController) Handler() http.Handler {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.handler
}

// Create adds the deployment to the host's ServletContainer and deploys it.
func (controller *DeploymentController) Create() (err error) {
	span := controller.startSpan("create")
	defer func() { endSpan(span, err) }()

	controller.lock.Lock()
	defer controller.lock.Unlock()

	if controller.state != Undeployed {
		return newDeploymentError(CreateFailed, controller.descriptor, errors.Errorf("cannot create from state %s", controller.state))
	}

	container := controller.host.Container()
	if container == nil {
		return newDeploymentError(CreateFailed, controller.descriptor, errors.New("host has no servlet container"))
	}

	manager, err := container.AddDeployment(controller.descriptor)
	if err != nil {
		return newDeploymentError(CreateFailed, controller.descriptor, err)
	}

	if err = manager.Deploy(); err != nil {
		if removeErr := container.RemoveDeployment(controller.descriptor.Name()); removeErr != nil {
			controller.logger().Warnf("could not remove deployment after failed deploy: %v", removeErr)
		}
		return newDeploymentError(CreateFailed, controller.descriptor, err)
	}

	controller.manager = manager
	controller.setState(Created)

	return nil
}

// Start activates the deployment, installs its handler at the context path, records the descriptor on the host and
// notifies listeners. If activation fails the deployment stays Created. If installation fails the deployment is left
// Started but not routed, no listener is notified and the returned error says why. Listener failures are returned as
// a *ListenerNotificationError after the deployment has been fully started.
func (controller *DeploymentController) Start() (err error) {
	span := controller.startSpan("start")
	defer func() { endSpan(span, err) }()

	controller.lock.Lock()
	defer controller.lock.Unlock()

	if controller.state != Created {
		return newDeploymentError(StartFailed, controller.descriptor, errors.Errorf("cannot start from state %s", controller.state))
	}

	handler, err := controller.manager.Start()
	if err != nil {
		return newDeploymentError(StartFailed, controller.descriptor, err)
	}
	if handler == nil {
		return newDeploymentError(StartFailed, controller.descriptor, errors.New("deployment manager returned a nil handler"))
	}

	controller.handler = handler
	controller.setState(Started)

	if err = controller.host.routeDeployment(controller.descriptor, handler); err != nil {
		controller.logger().Errorf("deployment started but could not be routed, stop and destroy it to recover: %v", err)
		return err
	}
	controller.routed = true
	controller.announced = true

	return controller.host.fireDeploymentStart(controller.descriptor)
}

// Stop removes the deployment's route, stops the deployment (letting in-flight requests finish) and then notifies
// listeners. Stopping a stopped deployment does nothing.
func (controller *DeploymentController) Stop() (err error) {
	span := controller.startSpan("stop")
	defer func() { endSpan(span, err) }()

	controller.lock.Lock()
	defer controller.lock.Unlock()

	switch controller.state {
	case Stopped:
		return nil
	case Started:
	default:
		return newDeploymentError(StopFailed, controller.descriptor, errors.Errorf("cannot stop from state %s", controller.state))
	}

	if controller.routed {
		controller.host.unrouteDeployment(controller.descriptor)
		controller.routed = false
	}

	if err = controller.manager.Stop(); err != nil {
		return newDeploymentError(StopFailed, controller.descriptor, err)
	}

	controller.handler = nil
	controller.setState(Stopped)

	if controller.announced {
		controller.announced = false
		return controller.host.fireDeploymentStop(controller.descriptor)
	}

	return nil
}

// Destroy undeploys the deployment and removes it from the ServletContainer. It is valid after Create or Stop and
// never touches the host's PathTable.
func (controller *DeploymentController) Destroy() (err error) {
	span := controller.startSpan("destroy")
	defer func() { endSpan(span, err) }()

	controller.lock.Lock()
	defer controller.lock.Unlock()

	switch controller.state {
	case Created, Stopped:
	default:
		return newDeploymentError(DestroyFailed, controller.descriptor, errors.Errorf("cannot destroy from state %s", controller.state))
	}

	if err = controller.manager.Undeploy(); err != nil {
		return newDeploymentError(DestroyFailed, controller.descriptor, err)
	}

	controller.manager = nil
	controller.setState(Destroyed)

	if container := controller.host.Container(); container != nil {
		if err = container.RemoveDeployment(controller.descriptor.Name()); err != nil {
			return newDeploymentError(DestroyFailed, controller.descriptor, err)
		}
	}

	return nil
}

func (controller *DeploymentController) setState(state DeploymentState) {
	controller.logger().Debugf("deployment state %s -> %s", controller.state, state)
	controller.state = state
}

func (controller *DeploymentController) logger() *logrus.Entry {
	return pfxlog.Logger().
		WithField("host", controller.host.Name()).
		WithField("deployment", controller.descriptor.Name()).
		WithField("controllerId", controller.id)
}

func (controller *DeploymentController) startSpan(operation string) trace.Span {
	_, span := tracer.Start(context.Background(), "xhost.deployment."+operation,
		trace.WithAttributes(
			attribute.String("xhost.host", controller.host.Name()),
			attribute.String("xhost.deployment", controller.descriptor.Name()),
			attribute.String("xhost.context_path", controller.descriptor.Path()),
			attribute.String("xhost.controller_id", controller.id),
		),
	)
	return span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
