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
	"fmt"
	"net/http"
	"sort"

	"github.com/openziti/xhost"
	"github.com/pkg/errors"
)

// builtinServlets are the servlet types a configuration file can refer to
func builtinServlets() xhost.ServletRegistry {
	registry := xhost.NewServletRegistryMap()
	_ = registry.Add("echo", newEchoServlet)
	_ = registry.Add("files", newFilesServlet)
	_ = registry.Add("text", newTextServlet)
	return registry
}

// echo answers with the routing information of the request and its init params
func newEchoServlet(initParams map[string]string) (http.Handler, error) {
	var keys []string
	for key := range initParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		host := xhost.HostFromRequestContext(request.Context())
		if host != nil {
			_, _ = fmt.Fprintf(writer, "host: %s\n", host.Name())
		}
		_, _ = fmt.Fprintf(writer, "context: %s\n", xhost.ContextPathFromRequestContext(request.Context()))
		_, _ = fmt.Fprintf(writer, "path: %s\n", request.URL.Path)
		for _, key := range keys {
			_, _ = fmt.Fprintf(writer, "%s: %s\n", key, initParams[key])
		}
	}), nil
}

// files serves the directory named by the root init param
func newFilesServlet(initParams map[string]string) (http.Handler, error) {
	root := initParams["root"]
	if root == "" {
		return nil, errors.New("files servlet requires a root init param")
	}
	return http.FileServer(http.Dir(root)), nil
}

// text answers every request with the body init param
func newTextServlet(initParams map[string]string) (http.Handler, error) {
	body := initParams["body"]
	contentType := initParams["contentType"]
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	return http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", contentType)
		_, _ = writer.Write([]byte(body))
	}), nil
}
