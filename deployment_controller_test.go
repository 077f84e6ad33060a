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
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var _ ServletContainer = (*mockContainer)(nil)
var _ DeploymentManager = (*mockManager)(nil)

type mockContainer struct {
	lock  sync.Mutex
	calls []string

	addErr      error
	deployErr   error
	startErr    error
	stopErr     error
	undeployErr error
	removeErr   error

	onStop func(name string)
}

func (c *mockContainer) record(call string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.calls = append(c.calls, call)
}

func (c *mockContainer) Calls() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *mockContainer) AddDeployment(descriptor *DeploymentDescriptor) (DeploymentManager, error) {
	c.record("add:" + descriptor.Name())
	if c.addErr != nil {
		return nil, c.addErr
	}
	return &mockManager{container: c, name: descriptor.Name()}, nil
}

func (c *mockContainer) RemoveDeployment(name string) error {
	c.record("remove:" + name)
	return c.removeErr
}

type mockManager struct {
	container *mockContainer
	name      string
}

func (m *mockManager) Deploy() error {
	m.container.record("deploy:" + m.name)
	return m.container.deployErr
}

func (m *mockManager) Start() (http.Handler, error) {
	m.container.record("start:" + m.name)
	if m.container.startErr != nil {
		return nil, m.container.startErr
	}
	return namedHandler(m.name), nil
}

func (m *mockManager) Stop() error {
	m.container.record("stop:" + m.name)
	if m.container.onStop != nil {
		m.container.onStop(m.name)
	}
	return m.container.stopErr
}

func (m *mockManager) Undeploy() error {
	m.container.record("undeploy:" + m.name)
	return m.container.undeployErr
}

func newTestHost(t *testing.T, container ServletContainer) (*Server, *Host, *[]string) {
	var events []string
	server := NewServer("test-server", container)
	server.Notifier().Subscribe(&recordingListener{name: "listener", events: &events})

	host := NewHost("default-host", []string{"localhost"}, server)
	require.NoError(t, host.Start())

	return server, host, &events
}

func deployAndStart(t *testing.T, host *Host, descriptor *DeploymentDescriptor) *DeploymentController {
	req := require.New(t)
	controller, err := host.AddWebDeployment(descriptor)
	req.NoError(err)
	req.NoError(controller.Create())
	req.NoError(controller.Start())
	return controller
}

func TestDeploymentController_Lifecycle(t *testing.T) {
	container := &mockContainer{}
	_, host, events := newTestHost(t, container)
	descriptor := &DeploymentDescriptor{DeploymentName: "a", ContextPath: "/app"}

	req := require.New(t)

	controller, err := host.AddWebDeployment(descriptor)
	req.NoError(err)
	req.Equal(Undeployed, controller.State())
	req.NotEmpty(controller.ID())
	req.Empty(container.Calls())

	req.NoError(controller.Create())
	req.Equal(Created, controller.State())
	req.Equal([]string{"add:a", "deploy:a"}, container.Calls())
	req.Empty(host.GetContexts())
	req.Empty(*events)

	req.NoError(controller.Start())
	req.Equal(Started, controller.State())
	req.True(controller.Routed())
	req.NotNil(controller.Handler())
	req.Equal([]string{"/app"}, host.GetContexts())
	req.Equal([]*DeploymentDescriptor{descriptor}, host.GetDeploymentInfo())
	req.Equal([]string{"listener:start:/app"}, *events)

	req.NoError(controller.Stop())
	req.Equal(Stopped, controller.State())
	req.False(controller.Routed())
	req.Nil(controller.Handler())
	req.Empty(host.GetContexts())
	req.Empty(host.GetDeploymentInfo())
	req.Equal([]string{"listener:start:/app", "listener:stop:/app"}, *events)

	req.NoError(controller.Destroy())
	req.Equal(Destroyed, controller.State())
	req.Equal([]string{"add:a", "deploy:a", "start:a", "stop:a", "undeploy:a", "remove:a"}, container.Calls())
}

func TestDeploymentController_StopOrdering(t *testing.T) {
	container := &mockContainer{}
	server, host, _ := newTestHost(t, container)

	var sequence []string
	container.onStop = func(name string) {
		_, _, found := host.Resolve("/app/x")
		sequence = append(sequence, "manager stop, routed="+boolString(found))
	}
	server.Notifier().Subscribe(&DeploymentListenerFuncs{
		OnStop: func(descriptor *DeploymentDescriptor, h *Host) error {
			sequence = append(sequence, "listener stop, registered="+boolString(len(h.GetDeploymentInfo()) > 0))
			return nil
		},
	})

	controller := deployAndStart(t, host, &DeploymentDescriptor{ContextPath: "/app"})

	req := require.New(t)
	req.NoError(controller.Stop())
	req.Equal([]string{"manager stop, routed=false", "listener stop, registered=false"}, sequence)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestDeploymentController_InvalidTransitions(t *testing.T) {
	t.Run("start before create fails with StartFailed", func(t *testing.T) {
		_, host, _ := newTestHost(t, &mockContainer{})
		controller, err := host.AddWebDeployment(&DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)

		err = controller.Start()
		req.True(IsDeploymentError(err, StartFailed))
		req.Equal(Undeployed, controller.State())
	})

	t.Run("stop before start fails with StopFailed", func(t *testing.T) {
		_, host, _ := newTestHost(t, &mockContainer{})
		controller, err := host.AddWebDeployment(&DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)
		req.NoError(controller.Create())

		err = controller.Stop()
		req.True(IsDeploymentError(err, StopFailed))
		req.Equal(Created, controller.State())
	})

	t.Run("destroy before create fails with DestroyFailed", func(t *testing.T) {
		container := &mockContainer{}
		_, host, _ := newTestHost(t, container)
		controller, err := host.AddWebDeployment(&DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)

		err = controller.Destroy()
		req.True(IsDeploymentError(err, DestroyFailed))
		req.Empty(container.Calls())
	})

	t.Run("destroy while started fails with DestroyFailed", func(t *testing.T) {
		_, host, _ := newTestHost(t, &mockContainer{})
		controller := deployAndStart(t, host, &DeploymentDescriptor{ContextPath: "/app"})

		err := controller.Destroy()
		req := require.New(t)
		req.True(IsDeploymentError(err, DestroyFailed))
		req.Equal([]string{"/app"}, host.GetContexts())
	})

	t.Run("a stopped deployment cannot be started again", func(t *testing.T) {
		_, host, _ := newTestHost(t, &mockContainer{})
		controller := deployAndStart(t, host, &DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(controller.Stop())

		err := controller.Start()
		req.True(IsDeploymentError(err, StartFailed))
		req.Equal(Stopped, controller.State())
	})

	t.Run("create twice fails with CreateFailed", func(t *testing.T) {
		_, host, _ := newTestHost(t, &mockContainer{})
		controller, err := host.AddWebDeployment(&DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)
		req.NoError(controller.Create())
		req.True(IsDeploymentError(controller.Create(), CreateFailed))
	})

	t.Run("stopping a stopped deployment is a no-op", func(t *testing.T) {
		container := &mockContainer{}
		_, host, events := newTestHost(t, container)
		controller := deployAndStart(t, host, &DeploymentDescriptor{ContextPath: "/app"})

		req := require.New(t)
		req.NoError(controller.Stop())
		req.NoError(controller.Stop())
		req.Equal([]string{"listener:start:/app", "listener:stop:/app"}, *events)
		req.Equal(1, countCalls(container, "stop:/app"))
	})
}

func countCalls(container *mockContainer, call string) int {
	count := 0
	for _, c := range container.Calls() {
		if c == call {
			count++
		}
	}
	return count
}

func TestDeploymentController_Failures(t *testing.T) {
	t.Run("a rejected deployment fails with CreateFailed", func(t *testing.T) {
		container := &mockContainer{addErr: errors.New("duplicate name")}
		_, host, _ := newTestHost(t, container)
		controller, err := host.AddWebDeployment(&DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)

		err = controller.Create()
		req.True(IsDeploymentError(err, CreateFailed))
		req.ErrorIs(err, container.addErr)
		req.Equal(Undeployed, controller.State())
	})

	t.Run("a failed deploy is removed from the container", func(t *testing.T) {
		container := &mockContainer{deployErr: errors.New("bad servlet")}
		_, host, _ := newTestHost(t, container)
		controller, err := host.AddWebDeployment(&DeploymentDescriptor{DeploymentName: "a", ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)

		req.True(IsDeploymentError(controller.Create(), CreateFailed))
		req.Equal([]string{"add:a", "deploy:a", "remove:a"}, container.Calls())
	})

	t.Run("a failed start leaves the deployment created and unrouted", func(t *testing.T) {
		container := &mockContainer{startErr: errors.New("activation failed")}
		_, host, events := newTestHost(t, container)
		controller, err := host.AddWebDeployment(&DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)
		req.NoError(controller.Create())

		err = controller.Start()
		req.True(IsDeploymentError(err, StartFailed))
		req.Equal(Created, controller.State())
		req.Empty(host.GetContexts())
		req.Empty(host.GetDeploymentInfo())
		req.Empty(*events)

		container.startErr = nil
		req.NoError(controller.Start())
		req.Equal([]string{"/app"}, host.GetContexts())
		req.Equal([]string{"listener:start:/app"}, *events)
	})

	t.Run("a failed stop can be retried", func(t *testing.T) {
		container := &mockContainer{}
		_, host, events := newTestHost(t, container)
		controller := deployAndStart(t, host, &DeploymentDescriptor{ContextPath: "/app"})

		container.stopErr = errors.New("drain failed")
		req := require.New(t)
		req.True(IsDeploymentError(controller.Stop(), StopFailed))
		req.Equal(Started, controller.State())
		req.Empty(host.GetContexts())

		container.stopErr = nil
		req.NoError(controller.Stop())
		req.Equal(Stopped, controller.State())
		req.Equal([]string{"listener:start:/app", "listener:stop:/app"}, *events)
	})

	t.Run("listener failures are reported but do not undo the start", func(t *testing.T) {
		container := &mockContainer{}
		server, host, events := newTestHost(t, container)
		listenerErr := errors.New("listener failed")

		var calledAfter bool
		server.Notifier().Unsubscribe(server.Notifier().Listeners()[0])
		server.Notifier().Subscribe(&recordingListener{name: "failing", events: events, startErr: listenerErr})
		server.Notifier().Subscribe(&DeploymentListenerFuncs{
			OnStart: func(*DeploymentDescriptor, *Host) error {
				calledAfter = true
				return nil
			},
		})

		controller, err := host.AddWebDeployment(&DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)
		req.NoError(controller.Create())

		err = controller.Start()
		var notificationErr *ListenerNotificationError
		req.ErrorAs(err, &notificationErr)
		req.ErrorIs(err, listenerErr)
		req.True(calledAfter)
		req.Equal(Started, controller.State())
		req.True(controller.Routed())
		req.Equal([]string{"/app"}, host.GetContexts())
	})

	t.Run("a container failing removal still releases the deployment", func(t *testing.T) {
		container := &mockContainer{removeErr: errors.New("already gone")}
		_, host, _ := newTestHost(t, container)
		controller, err := host.AddWebDeployment(&DeploymentDescriptor{ContextPath: "/app"})
		req := require.New(t)
		req.NoError(err)
		req.NoError(controller.Create())

		req.True(IsDeploymentError(controller.Destroy(), DestroyFailed))
		req.Equal(Destroyed, controller.State())
	})
}

func TestDeploymentController_DestroyAfterCreate(t *testing.T) {
	container := &mockContainer{}
	_, host, events := newTestHost(t, container)
	req := require.New(t)
	req.NoError(host.RegisterHandler("/static", namedHandler("static")))

	controller, err := host.AddWebDeployment(&DeploymentDescriptor{DeploymentName: "a", ContextPath: "/app"})
	req.NoError(err)
	req.NoError(controller.Create())
	req.NoError(controller.Destroy())

	req.Equal(Destroyed, controller.State())
	req.Equal([]string{"add:a", "deploy:a", "undeploy:a", "remove:a"}, container.Calls())
	req.Equal([]string{"/static"}, host.GetContexts())
	req.Empty(*events)
}

func TestDeploymentController_DuplicateContext(t *testing.T) {
	t.Run("adding a deployment at a deployed context path fails before any mutation", func(t *testing.T) {
		container := &mockContainer{}
		_, host, _ := newTestHost(t, container)
		a := &DeploymentDescriptor{DeploymentName: "a", ContextPath: "/app"}
		deployAndStart(t, host, a)
		callsBefore := container.Calls()

		controller, err := host.AddWebDeployment(&DeploymentDescriptor{DeploymentName: "b", ContextPath: "/app/"})

		req := require.New(t)
		req.Nil(controller)
		req.True(IsDeploymentError(err, DuplicateContext))
		req.Equal([]string{"/app"}, host.GetContexts())
		req.Equal([]*DeploymentDescriptor{a}, host.GetDeploymentInfo())
		req.Equal(callsBefore, container.Calls())
		req.Equal("a", resolvedName(host.pathTable, "/app/x"))
	})

	t.Run("a second deployment started at the same path is left started but unrouted", func(t *testing.T) {
		container := &mockContainer{}
		_, host, events := newTestHost(t, container)
		a := &DeploymentDescriptor{DeploymentName: "a", ContextPath: "/app"}
		b := &DeploymentDescriptor{DeploymentName: "b", ContextPath: "/app"}

		req := require.New(t)
		controllerA, err := host.AddWebDeployment(a)
		req.NoError(err)
		controllerB, err := host.AddWebDeployment(b)
		req.NoError(err)

		req.NoError(controllerA.Create())
		req.NoError(controllerB.Create())
		req.NoError(controllerA.Start())

		err = controllerB.Start()
		req.True(IsDeploymentError(err, DuplicateContext))
		req.Equal(Started, controllerB.State())
		req.False(controllerB.Routed())
		req.Equal("a", resolvedName(host.pathTable, "/app/x"))
		req.Equal([]*DeploymentDescriptor{a}, host.GetDeploymentInfo())
		req.Equal([]string{"listener:start:/app"}, *events)

		req.NoError(controllerB.Stop())
		req.NoError(controllerB.Destroy())
		req.Equal("a", resolvedName(host.pathTable, "/app/x"))
		req.Equal([]string{"listener:start:/app"}, *events)
	})
}
