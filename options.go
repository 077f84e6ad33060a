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
	"crypto/tls"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const (
	MinTLSVersion = tls.VersionTLS12
	MaxTLSVersion = tls.VersionTLS13

	DefaultHttpWriteTimeout = time.Second * 10
	DefaultHttpReadTimeout  = time.Second * 5
	DefaultHttpIdleTimeout  = time.Second * 5
)

// TlsVersionMap is a map of configuration strings to TLS version identifiers
var TlsVersionMap = map[string]int{
	"TLS1.0": tls.VersionTLS10,
	"TLS1.1": tls.VersionTLS11,
	"TLS1.2": tls.VersionTLS12,
	"TLS1.3": tls.VersionTLS13,
}

// ServerOptions is the transport tuning for a ServerConfig
type ServerOptions struct {
	TimeoutOptions
	TlsVersionOptions
}

// Default provides defaults for all necessary values
func (options *ServerOptions) Default() {
	options.TimeoutOptions.Default()
	options.TlsVersionOptions.Default()
}

// Parse parses a configuration map
func (options *ServerOptions) Parse(optionsMap map[interface{}]interface{}) error {
	if err := options.TimeoutOptions.Parse(optionsMap); err != nil {
		return errors.Wrap(err, "error parsing options")
	}

	if err := options.TlsVersionOptions.Parse(optionsMap); err != nil {
		return errors.Wrap(err, "error parsing options")
	}

	return nil
}

// Validate validates all options
func (options *ServerOptions) Validate() error {
	if err := options.TlsVersionOptions.Validate(); err != nil {
		return errors.Wrap(err, "invalid TLS version option")
	}

	if err := options.TimeoutOptions.Validate(); err != nil {
		return errors.Wrap(err, "invalid timeout option")
	}

	return nil
}

// TimeoutOptions represents http timeout options
type TimeoutOptions struct {
	ReadTimeout  time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

// Default defaults all HTTP timeout options
func (timeoutOptions *TimeoutOptions) Default() {
	timeoutOptions.WriteTimeout = DefaultHttpWriteTimeout
	timeoutOptions.ReadTimeout = DefaultHttpReadTimeout
	timeoutOptions.IdleTimeout = DefaultHttpIdleTimeout
}

// Parse parses a config map
func (timeoutOptions *TimeoutOptions) Parse(config map[interface{}]interface{}) error {
	targets := []struct {
		key    string
		target *time.Duration
	}{
		{"readTimeout", &timeoutOptions.ReadTimeout},
		{"idleTimeout", &timeoutOptions.IdleTimeout},
		{"writeTimeout", &timeoutOptions.WriteTimeout},
	}

	for _, t := range targets {
		durationStr, ok, err := stringValue(config, t.key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		duration, err := time.ParseDuration(durationStr)
		if err != nil {
			return errors.Wrapf(err, "could not parse %s %s as a duration (e.g. 1m)", t.key, durationStr)
		}
		*t.target = duration
	}

	return nil
}

// Validate validates all settings and return nil or an error
func (timeoutOptions *TimeoutOptions) Validate() error {
	if timeoutOptions.WriteTimeout <= 0 {
		return fmt.Errorf("value [%s] for writeTimeout too low, must be positive", timeoutOptions.WriteTimeout.String())
	}

	if timeoutOptions.ReadTimeout <= 0 {
		return fmt.Errorf("value [%s] for readTimeout too low, must be positive", timeoutOptions.ReadTimeout.String())
	}

	if timeoutOptions.IdleTimeout <= 0 {
		return fmt.Errorf("value [%s] for idleTimeout too low, must be positive", timeoutOptions.IdleTimeout.String())
	}

	return nil
}

// TlsVersionOptions represents TLS version options, used when the server is given an identity
type TlsVersionOptions struct {
	MinTLSVersion int
	MaxTLSVersion int
}

// Default defaults TLS versions
func (tlsVersionOptions *TlsVersionOptions) Default() {
	tlsVersionOptions.MinTLSVersion = MinTLSVersion
	tlsVersionOptions.MaxTLSVersion = MaxTLSVersion
}

// Parse parses a config map
func (tlsVersionOptions *TlsVersionOptions) Parse(config map[interface{}]interface{}) error {
	targets := []struct {
		key    string
		target *int
	}{
		{"minTLSVersion", &tlsVersionOptions.MinTLSVersion},
		{"maxTLSVersion", &tlsVersionOptions.MaxTLSVersion},
	}

	for _, t := range targets {
		versionStr, ok, err := stringValue(config, t.key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		version, ok := TlsVersionMap[versionStr]
		if !ok {
			return errors.Errorf("could not use value for %s, invalid value [%s]", t.key, versionStr)
		}
		*t.target = version
	}

	return nil
}

// Validate validates the configuration values and returns nil or error
func (tlsVersionOptions *TlsVersionOptions) Validate() error {
	if tlsVersionOptions.MinTLSVersion > tlsVersionOptions.MaxTLSVersion {
		return errors.Errorf("minTLSVersion [%s] must be less than or equal to maxTLSVersion [%s]",
			tls.VersionName(uint16(tlsVersionOptions.MinTLSVersion)), tls.VersionName(uint16(tlsVersionOptions.MaxTLSVersion)))
	}

	return nil
}
