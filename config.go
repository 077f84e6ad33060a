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
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/openziti/identity"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ServerConfig is the configuration used to build a Server, its Host's and their initial mounts and deployments
type ServerConfig struct {
	SourceConfig map[interface{}]interface{}

	Name           string
	Interface      string //<interface>:<port> requests are served on
	AdminInterface string //<interface>:<port> of the admin API, optional
	DefaultHost    string
	Hosts          []*HostConfig
	Options        ServerOptions

	//optional, serve TLS with this identity when present
	IdentityConfig *identity.Config
}

// LoadServerConfig reads and parses a YAML configuration file
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", path)
	}

	config, err := ParseServerConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse config file %s", path)
	}

	return config, nil
}

// ParseServerConfig parses a YAML document into a ServerConfig
func ParseServerConfig(data []byte) (*ServerConfig, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	configMap, _ := normalizeYaml(raw).(map[interface{}]interface{})
	if configMap == nil {
		return nil, errors.New("configuration must be a map")
	}

	config := &ServerConfig{}
	if err := config.Parse(configMap); err != nil {
		return nil, err
	}

	return config, nil
}

// Parse parses a configuration map to set all relevant ServerConfig values.
func (config *ServerConfig) Parse(configMap map[interface{}]interface{}) error {
	config.SourceConfig = configMap

	var ok bool
	var err error

	if config.Name, ok, err = stringValue(configMap, "name"); err != nil {
		return err
	} else if !ok {
		return errors.New("name is required")
	}

	if config.Interface, ok, err = stringValue(configMap, "interface"); err != nil {
		return err
	} else if !ok {
		return errors.New("interface is required")
	}

	if config.AdminInterface, _, err = stringValue(configMap, "adminInterface"); err != nil {
		return err
	}

	if config.DefaultHost, _, err = stringValue(configMap, "defaultHost"); err != nil {
		return err
	}

	hostMaps, ok, err := mapsValue(configMap, "hosts")
	if err != nil {
		return err
	} else if !ok {
		return errors.New("hosts section is required")
	}

	for i, hostMap := range hostMaps {
		hostConfig := &HostConfig{}
		if err = hostConfig.Parse(hostMap); err != nil {
			return errors.Wrapf(err, "error parsing host configuration at index [%d]", i)
		}
		config.Hosts = append(config.Hosts, hostConfig)
	}

	config.Options = ServerOptions{}
	config.Options.Default()

	if optionMap, ok, err := mapValue(configMap, "options"); err != nil {
		return err
	} else if ok {
		if err = config.Options.Parse(optionMap); err != nil {
			return errors.Wrap(err, "error parsing options section")
		}
	}

	if identityMap, ok, err := mapValue(configMap, "identity"); err != nil {
		return err
	} else if ok {
		if config.IdentityConfig, err = parseIdentityConfig(identityMap, "identity"); err != nil {
			return errors.Wrap(err, "error parsing identity section")
		}
	}

	return nil
}

// Validate all ServerConfig values. Servlet types are resolved against registry.
func (config *ServerConfig) Validate(registry ServletRegistry) error {
	if config.Name == "" {
		return errors.New("name must not be empty")
	}

	if err := validateHostPort(config.Interface); err != nil {
		return errors.Wrapf(err, "invalid interface address [%s]", config.Interface)
	}

	if config.AdminInterface != "" {
		if err := validateHostPort(config.AdminInterface); err != nil {
			return errors.Wrapf(err, "invalid admin interface address [%s]", config.AdminInterface)
		}
	}

	if len(config.Hosts) == 0 {
		return errors.New("no hosts specified, must specify at least one")
	}

	names := map[string]struct{}{}
	for i, hostConfig := range config.Hosts {
		if err := hostConfig.Validate(registry); err != nil {
			return errors.Wrapf(err, "invalid host at index [%d]", i)
		}
		if _, ok := names[hostConfig.Name]; ok {
			return errors.Errorf("duplicate host name [%s]", hostConfig.Name)
		}
		names[hostConfig.Name] = struct{}{}
	}

	if config.DefaultHost != "" {
		if _, ok := names[config.DefaultHost]; !ok {
			return errors.Errorf("default host [%s] is not a configured host", config.DefaultHost)
		}
	}

	return config.Options.Validate()
}

// HostConfig describes one Host, the raw handlers mounted on it and the deployments started on it
type HostConfig struct {
	Name        string
	Aliases     []string
	Compression bool
	Mounts      []*MountConfig
	Deployments []*DeploymentConfig
}

// Parse the configuration map for a HostConfig.
func (config *HostConfig) Parse(configMap map[interface{}]interface{}) error {
	var ok bool
	var err error

	if config.Name, ok, err = stringValue(configMap, "name"); err != nil {
		return err
	} else if !ok {
		return errors.New("name is required")
	}

	if config.Aliases, _, err = stringsValue(configMap, "aliases"); err != nil {
		return err
	}

	if config.Compression, _, err = boolValue(configMap, "compression"); err != nil {
		return err
	}

	mountMaps, _, err := mapsValue(configMap, "mounts")
	if err != nil {
		return err
	}
	for i, mountMap := range mountMaps {
		mount := &MountConfig{}
		if err = mount.Parse(mountMap); err != nil {
			return errors.Wrapf(err, "error parsing mount at index [%d]", i)
		}
		config.Mounts = append(config.Mounts, mount)
	}

	deploymentMaps, _, err := mapsValue(configMap, "deployments")
	if err != nil {
		return err
	}
	for i, deploymentMap := range deploymentMaps {
		deployment := &DeploymentConfig{}
		if err = deployment.Parse(deploymentMap); err != nil {
			return errors.Wrapf(err, "error parsing deployment at index [%d]", i)
		}
		config.Deployments = append(config.Deployments, deployment)
	}

	return nil
}

// Validate this configuration object.
func (config *HostConfig) Validate(registry ServletRegistry) error {
	if config.Name == "" {
		return errors.New("name must not be empty")
	}

	paths := map[string]string{}
	claim := func(path, owner string) error {
		normalized := NormalizePath(path)
		if existing, ok := paths[normalized]; ok {
			return errors.Errorf("path [%s] of %s is already used by %s", normalized, owner, existing)
		}
		paths[normalized] = owner
		return nil
	}

	for i, mount := range config.Mounts {
		if err := mount.Validate(); err != nil {
			return errors.Wrapf(err, "invalid mount at index [%d]", i)
		}
		if err := claim(mount.Path, fmt.Sprintf("mount [%d]", i)); err != nil {
			return err
		}
	}

	for i, deployment := range config.Deployments {
		if err := deployment.Validate(registry); err != nil {
			return errors.Wrapf(err, "invalid deployment at index [%d]", i)
		}
		if err := claim(deployment.ContextPath, fmt.Sprintf("deployment [%s]", deployment.Name)); err != nil {
			return err
		}
	}

	return nil
}

// MountConfig serves the files below Root at Path, bypassing the deployment lifecycle
type MountConfig struct {
	Path string
	Root string
}

// Parse the configuration map for a MountConfig.
func (config *MountConfig) Parse(configMap map[interface{}]interface{}) error {
	var ok bool
	var err error

	if config.Path, ok, err = stringValue(configMap, "path"); err != nil {
		return err
	} else if !ok {
		return errors.New("path is required")
	}

	if config.Root, ok, err = stringValue(configMap, "root"); err != nil {
		return err
	} else if !ok {
		return errors.New("root is required")
	}

	return nil
}

// Validate this configuration object.
func (config *MountConfig) Validate() error {
	if err := validatePath(NormalizePath(config.Path)); err != nil {
		return errors.Wrapf(err, "invalid path [%s]", config.Path)
	}
	if strings.TrimSpace(config.Root) == "" {
		return errors.New("root must not be empty")
	}
	return nil
}

// DeploymentConfig describes a deployment that is created and started when the host starts
type DeploymentConfig struct {
	Name         string
	ContextPath  string
	ResourceRoot string
	Servlets     []*ServletConfig
}

// Parse the configuration map for a DeploymentConfig.
func (config *DeploymentConfig) Parse(configMap map[interface{}]interface{}) error {
	var ok bool
	var err error

	if config.ContextPath, ok, err = stringValue(configMap, "contextPath"); err != nil {
		return err
	} else if !ok {
		return errors.New("contextPath is required")
	}

	if config.Name, _, err = stringValue(configMap, "name"); err != nil {
		return err
	}

	if config.ResourceRoot, _, err = stringValue(configMap, "resourceRoot"); err != nil {
		return err
	}

	servletMaps, _, err := mapsValue(configMap, "servlets")
	if err != nil {
		return err
	}
	for i, servletMap := range servletMaps {
		servlet := &ServletConfig{}
		if err = servlet.Parse(servletMap); err != nil {
			return errors.Wrapf(err, "error parsing servlet at index [%d]", i)
		}
		config.Servlets = append(config.Servlets, servlet)
	}

	return nil
}

// Validate this configuration object.
func (config *DeploymentConfig) Validate(registry ServletRegistry) error {
	if len(config.Servlets) == 0 && config.ResourceRoot == "" {
		return errors.New("a deployment needs at least one servlet or a resourceRoot")
	}

	descriptor, err := config.Descriptor(registry)
	if err != nil {
		return err
	}

	return descriptor.Validate()
}

// Descriptor builds the DeploymentDescriptor for this configuration, resolving servlet types against registry
func (config *DeploymentConfig) Descriptor(registry ServletRegistry) (*DeploymentDescriptor, error) {
	descriptor := &DeploymentDescriptor{
		DeploymentName: config.Name,
		ContextPath:    config.ContextPath,
		ResourceRoot:   config.ResourceRoot,
	}

	for _, servletConfig := range config.Servlets {
		var factory ServletFactory
		if registry != nil {
			factory = registry.Get(servletConfig.Type)
		}
		if factory == nil {
			return nil, errors.Errorf("servlet [%s] has unknown type [%s]", servletConfig.Name, servletConfig.Type)
		}

		descriptor.Servlets = append(descriptor.Servlets, &ServletSpec{
			Name:          servletConfig.Name,
			Source:        ByClass{Factory: factory},
			UrlMappings:   servletConfig.UrlMappings,
			InitParams:    servletConfig.InitParams,
			LoadOnStartup: servletConfig.LoadOnStartup,
		})
	}

	return descriptor, nil
}

// ServletConfig refers to a servlet type registered in a ServletRegistry
type ServletConfig struct {
	Name          string
	Type          string
	UrlMappings   []string
	InitParams    map[string]string
	LoadOnStartup bool
}

// Parse the configuration map for a ServletConfig.
func (config *ServletConfig) Parse(configMap map[interface{}]interface{}) error {
	var ok bool
	var err error

	if config.Name, ok, err = stringValue(configMap, "name"); err != nil {
		return err
	} else if !ok {
		return errors.New("name is required")
	}

	if config.Type, ok, err = stringValue(configMap, "type"); err != nil {
		return err
	} else if !ok {
		return errors.New("type is required")
	}

	if config.UrlMappings, _, err = stringsValue(configMap, "urlMappings"); err != nil {
		return err
	}

	if config.InitParams, _, err = stringMapValue(configMap, "initParams"); err != nil {
		return err
	}

	if config.LoadOnStartup, _, err = boolValue(configMap, "loadOnStartup"); err != nil {
		return err
	}

	return nil
}

func parseIdentityConfig(identityMap map[interface{}]interface{}, pathContext string) (*identity.Config, error) {
	idConfig, err := identity.NewConfigFromMap(identityMap)
	if err != nil {
		return nil, err
	}

	if err = idConfig.ValidateWithPathContext(pathContext); err != nil {
		return nil, errors.Wrap(err, "error parsing identity")
	}

	return idConfig, nil
}

func validateHostPort(address string) error {
	address = strings.TrimSpace(address)

	if address == "" {
		return errors.New("must not be an empty string or unspecified")
	}

	host, port, err := net.SplitHostPort(address)

	if err != nil {
		return errors.Errorf("could not split host and port: %v", err)
	}

	if host == "" {
		return errors.New("host must be specified")
	}

	if port == "" {
		return errors.New("port must be specified")
	}

	if port, err := strconv.ParseInt(port, 10, 32); err != nil {
		return errors.New("invalid port, must be a integer")
	} else if port < 1 || port > 65535 {
		return errors.New("invalid port, must 1-65535")
	}

	return nil
}
