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

/*
Package xhost provides virtual hosts that route HTTP requests to deployments by context path, and the lifecycle
machinery to bring deployments up and down while the host keeps serving.

# Basics

A Server owns a set of Host's, the DeploymentListener's interested in deployment events and the ServletContainer that
deployments are created in. Each Host has a name and a set of aliases and owns a PathTable. Requests handed to a
Server are given to the Host whose alias matches the request's Host header (or the default host), and the Host
dispatches them to the handler registered at the longest context path that prefixes the request path on a segment
boundary. Requests matching no context path get the default http.Handler of the Host or Server, or an empty 404.

# Deployments

A DeploymentDescriptor is handed to Host.AddWebDeployment, which rejects context paths that are already deployed and
returns a DeploymentController. The controller is then driven through Create, Start, Stop and Destroy by whoever
manages the deployment:

	controller, err := host.AddWebDeployment(descriptor)
	...
	err = controller.Create()  // added to the ServletContainer and deployed
	err = controller.Start()   // activated, routed, listeners notified
	err = controller.Stop()    // unrouted, drained, listeners notified
	err = controller.Destroy() // undeployed and removed from the ServletContainer

A stopped deployment is not restarted in place; request a new controller instead. Failures come back as
*DeploymentError values, listener failures as a *ListenerNotificationError after the transition took effect.

Raw handlers that do not need a lifecycle, such as static file mounts, can be installed with Host.RegisterHandler.

Instance assembles all of the above from a YAML ServerConfig and serves it over HTTP, or TLS when an identity is
configured.
*/
package xhost
