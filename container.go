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

import "net/http"

// ServletContainer is the container a Host deploys into. AddDeployment and RemoveDeployment bracket the lifetime of a
// deployment inside the container; everything in between is driven through the returned DeploymentManager.
type ServletContainer interface {
	AddDeployment(descriptor *DeploymentDescriptor) (DeploymentManager, error)
	RemoveDeployment(deploymentName string) error
}

// DeploymentManager drives a single deployment inside a ServletContainer.
type DeploymentManager interface {
	Deploy() error
	// Start activates the deployment and returns the handler to route requests to.
	Start() (http.Handler, error)
	// Stop refuses new requests and waits for in-flight requests to finish.
	Stop() error
	Undeploy() error
}
