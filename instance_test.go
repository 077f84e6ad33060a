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
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstance(t *testing.T) {
	assets := t.TempDir()
	req := require.New(t)
	req.NoError(os.WriteFile(filepath.Join(assets, "logo.txt"), []byte("logo"), 0644))

	config, err := ParseServerConfig([]byte(fmt.Sprintf(`
name: instance-test
interface: 127.0.0.1:18080
defaultHost: example
hosts:
  - name: example
    aliases: [ www.example.com ]
    mounts:
      - path: /assets
        root: %s
    deployments:
      - name: app
        contextPath: /app
        servlets:
          - name: hello
            type: test
            urlMappings: [ "/*" ]
            initParams:
              greeting: hello
      - name: nested
        contextPath: /app/nested
        servlets:
          - name: hi
            type: test
            urlMappings: [ "/" ]
            initParams:
              greeting: hi
  - name: other
    deployments:
      - contextPath: /
        servlets:
          - name: other
            type: test
            urlMappings: [ "/" ]
            initParams:
              greeting: other
`, assets)))
	req.NoError(err)

	instance := NewInstance(config, testRegistry(t))
	req.NoError(instance.Build())

	var events []string
	instance.Server.Notifier().Subscribe(&recordingListener{name: "events", events: &events})
	req.NoError(instance.Deploy())

	serve := func(host, target string) (int, string) {
		request := httptest.NewRequest(http.MethodGet, target, nil)
		request.Host = host
		recorder := httptest.NewRecorder()
		instance.Server.ServeHTTP(recorder, request)
		return recorder.Code, recorder.Body.String()
	}

	t.Run("configured deployments and mounts are served", func(t *testing.T) {
		req := require.New(t)

		_, body := serve("www.example.com", "/app/page")
		req.Equal("hello", body)

		_, body = serve("example", "/app/nested/page")
		req.Equal("hi", body)

		_, body = serve("example", "/assets/logo.txt")
		req.Equal("logo", body)

		_, body = serve("other", "/anything")
		req.Equal("other", body)

		_, body = serve("unknown.host", "/app")
		req.Equal("hello", body)

		code, _ := serve("example", "/missing")
		req.Equal(http.StatusNotFound, code)
	})

	t.Run("shutdown stops deployments in reverse order", func(t *testing.T) {
		req := require.New(t)
		hosts := instance.Hosts()
		req.Len(hosts, 2)

		instance.Shutdown(context.Background())

		req.Equal([]string{
			"events:start:/app",
			"events:start:/app/nested",
			"events:start:/",
			"events:stop:/",
			"events:stop:/app/nested",
			"events:stop:/app",
		}, events)

		for _, host := range hosts {
			req.Empty(host.GetContexts())
			req.Empty(host.GetDeploymentInfo())
		}
		req.Empty(instance.Server.Hosts())
		req.Empty(instance.Container.(*InProcessContainer).Deployments())
	})
}

func TestInstance_InvalidConfig(t *testing.T) {
	config, err := ParseServerConfig([]byte(`
name: invalid
interface: 127.0.0.1:18080
hosts:
  - name: example
    deployments:
      - contextPath: /app
        servlets:
          - name: hello
            type: unregistered
`))
	req := require.New(t)
	req.NoError(err)
	req.Error(NewInstance(config, testRegistry(t)).Build())
}
