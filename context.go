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

import "context"

type ContextKey string

const (
	HostContextKey        = ContextKey("xhost.Host.ContextKey")
	ContextPathContextKey = ContextKey("xhost.ContextPath.ContextKey")
)

// HostFromRequestContext is a utility function to retrieve the *Host that dispatched a request during downstream
// http.Handler processing.
func HostFromRequestContext(ctx context.Context) *Host {
	if val := ctx.Value(HostContextKey); val != nil {
		if host, ok := val.(*Host); ok {
			return host
		}
	}
	return nil
}

// ContextPathFromRequestContext returns the context path the request was routed by, or "" if it was not routed by a
// Host.
func ContextPathFromRequestContext(ctx context.Context) string {
	if val := ctx.Value(ContextPathContextKey); val != nil {
		if contextPath, ok := val.(string); ok {
			return contextPath
		}
	}
	return ""
}
