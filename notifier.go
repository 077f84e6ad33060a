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
	"reflect"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/concurrenz"
	"github.com/openziti/foundation/v2/debugz"
)

type DeploymentEvent string

const (
	DeploymentStartEvent DeploymentEvent = "deployment.start"
	DeploymentStopEvent  DeploymentEvent = "deployment.stop"
)

// DeploymentListener observes deployments being started and stopped on any Host of a Server. Listeners are called
// synchronously on the goroutine performing the lifecycle operation and must not subscribe or unsubscribe listeners
// from within a callback.
type DeploymentListener interface {
	OnDeploymentStart(descriptor *DeploymentDescriptor, host *Host) error
	OnDeploymentStop(descriptor *DeploymentDescriptor, host *Host) error
}

// DeploymentListenerFuncs adapts plain functions to a DeploymentListener. Nil functions are skipped.
type DeploymentListenerFuncs struct {
	OnStart func(descriptor *DeploymentDescriptor, host *Host) error
	OnStop  func(descriptor *DeploymentDescriptor, host *Host) error
}

func (f *DeploymentListenerFuncs) OnDeploymentStart(descriptor *DeploymentDescriptor, host *Host) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(descriptor, host)
}

func (f *DeploymentListenerFuncs) OnDeploymentStop(descriptor *DeploymentDescriptor, host *Host) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(descriptor, host)
}

// Notifier fans deployment events out to its listeners, one at a time in subscription order.
type Notifier struct {
	listeners concurrenz.CopyOnWriteSlice[DeploymentListener]
}

// NewNotifier creates a Notifier with no listeners
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe adds a listener to the end of the delivery order
func (notifier *Notifier) Subscribe(listener DeploymentListener) {
	notifier.listeners.Append(listener)
}

// Unsubscribe removes a listener, matched by identity. Unknown listeners are ignored. Listeners whose dynamic type is
// not comparable (a func, map or slice type, or a struct holding one) cannot be matched and stay subscribed, use a
// pointer type such as *DeploymentListenerFuncs for listeners that need to be removed.
func (notifier *Notifier) Unsubscribe(listener DeploymentListener) {
	if listener == nil {
		return
	}
	if !reflect.TypeOf(listener).Comparable() {
		pfxlog.Logger().Warnf("cannot unsubscribe deployment listener of non-comparable type %T", listener)
		return
	}
	notifier.listeners.Delete(listener)
}

// Listeners returns the current listeners in delivery order
func (notifier *Notifier) Listeners() []DeploymentListener {
	return notifier.listeners.Value()
}

// NotifyStart calls OnDeploymentStart on every listener
func (notifier *Notifier) NotifyStart(descriptor *DeploymentDescriptor, host *Host) error {
	return notifier.notify(DeploymentStartEvent, descriptor, host, DeploymentListener.OnDeploymentStart)
}

// NotifyStop calls OnDeploymentStop on every listener
func (notifier *Notifier) NotifyStop(descriptor *DeploymentDescriptor, host *Host) error {
	return notifier.notify(DeploymentStopEvent, descriptor, host, DeploymentListener.OnDeploymentStop)
}

func (notifier *Notifier) notify(event DeploymentEvent, descriptor *DeploymentDescriptor, host *Host, invoke func(DeploymentListener, *DeploymentDescriptor, *Host) error) error {
	var failures []error

	for _, listener := range notifier.listeners.Value() {
		if err := invokeListener(listener, descriptor, host, invoke); err != nil {
			pfxlog.Logger().WithField("event", string(event)).
				WithField("deployment", descriptor.Name()).
				Errorf("deployment listener %T failed: %v", listener, err)
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return &ListenerNotificationError{
			Event:    event,
			Failures: failures,
		}
	}

	return nil
}

func invokeListener(listener DeploymentListener, descriptor *DeploymentDescriptor, host *Host, invoke func(DeploymentListener, *DeploymentDescriptor, *Host) error) (err error) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			pfxlog.Logger().Errorf("panic caught in deployment listener: %v\n%v", panicVal, debugz.GenerateLocalStack())
			err = fmt.Errorf("listener %T panicked: %v", listener, panicVal)
		}
	}()

	return invoke(listener, descriptor, host)
}
