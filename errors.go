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
	"errors"
	"fmt"
	"strings"
)

// DeploymentErrorKind identifies which lifecycle step produced a DeploymentError
type DeploymentErrorKind int

const (
	DuplicateContext DeploymentErrorKind = iota
	CreateFailed
	StartFailed
	StopFailed
	DestroyFailed
)

func (kind DeploymentErrorKind) String() string {
	switch kind {
	case DuplicateContext:
		return "DuplicateContext"
	case CreateFailed:
		return "CreateFailed"
	case StartFailed:
		return "StartFailed"
	case StopFailed:
		return "StopFailed"
	case DestroyFailed:
		return "DestroyFailed"
	}
	return fmt.Sprintf("DeploymentErrorKind(%d)", int(kind))
}

// DeploymentError is returned by Host.AddWebDeployment and by DeploymentController lifecycle calls.
type DeploymentError struct {
	Kind        DeploymentErrorKind
	Deployment  string
	ContextPath string
	Cause       error
}

func (e *DeploymentError) Error() string {
	msg := fmt.Sprintf("%s: deployment [%s] at context path [%s]", e.Kind, e.Deployment, e.ContextPath)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DeploymentError) Unwrap() error {
	return e.Cause
}

func newDeploymentError(kind DeploymentErrorKind, descriptor *DeploymentDescriptor, cause error) *DeploymentError {
	return &DeploymentError{
		Kind:        kind,
		Deployment:  descriptor.Name(),
		ContextPath: descriptor.Path(),
		Cause:       cause,
	}
}

// IsDeploymentError reports whether err is, or wraps, a DeploymentError of the given kind.
func IsDeploymentError(err error, kind DeploymentErrorKind) bool {
	var deploymentErr *DeploymentError
	if errors.As(err, &deploymentErr) {
		return deploymentErr.Kind == kind
	}
	return false
}

// ListenerNotificationError aggregates the failures of individual listeners during one notification round. The
// transition that triggered the notification has already happened when this error is returned.
type ListenerNotificationError struct {
	Event    DeploymentEvent
	Failures []error
}

func (e *ListenerNotificationError) Error() string {
	var msgs []string
	for _, failure := range e.Failures {
		msgs = append(msgs, failure.Error())
	}
	return fmt.Sprintf("%d listener(s) failed on %s: [%s]", len(e.Failures), e.Event, strings.Join(msgs, "; "))
}

func (e *ListenerNotificationError) Unwrap() []error {
	return e.Failures
}
