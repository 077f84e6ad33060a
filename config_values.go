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

	"github.com/pkg/errors"
)

// the helpers below read typed values out of the map[interface{}]interface{} configuration sections. ok is false
// when the key is absent, err is set when it is present with the wrong type.

func stringValue(config map[interface{}]interface{}, key string) (value string, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return "", false, nil
	}
	if value, ok = raw.(string); !ok {
		return "", true, errors.Errorf("%s must be a string", key)
	}
	return value, true, nil
}

func boolValue(config map[interface{}]interface{}, key string) (value bool, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return false, false, nil
	}
	if value, ok = raw.(bool); !ok {
		return false, true, errors.Errorf("%s must be a boolean", key)
	}
	return value, true, nil
}

func mapValue(config map[interface{}]interface{}, key string) (value map[interface{}]interface{}, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return nil, false, nil
	}
	if value, ok = raw.(map[interface{}]interface{}); !ok {
		return nil, true, errors.Errorf("%s must be a map", key)
	}
	return value, true, nil
}

// mapsValue reads an array of maps
func mapsValue(config map[interface{}]interface{}, key string) (value []map[interface{}]interface{}, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return nil, false, nil
	}
	entries, isArray := raw.([]interface{})
	if !isArray {
		return nil, true, errors.Errorf("%s must be an array", key)
	}
	for i, entry := range entries {
		entryMap, isMap := entry.(map[interface{}]interface{})
		if !isMap {
			return nil, true, errors.Errorf("error parsing %s at index [%d]: not a map", key, i)
		}
		value = append(value, entryMap)
	}
	return value, true, nil
}

func stringsValue(config map[interface{}]interface{}, key string) (value []string, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return nil, false, nil
	}
	entries, isArray := raw.([]interface{})
	if !isArray {
		return nil, true, errors.Errorf("%s must be an array", key)
	}
	for i, entry := range entries {
		str, isString := entry.(string)
		if !isString {
			return nil, true, errors.Errorf("%s at index [%d] must be a string", key, i)
		}
		value = append(value, str)
	}
	return value, true, nil
}

// stringMapValue reads a map of scalars, rendering non-string scalars with fmt
func stringMapValue(config map[interface{}]interface{}, key string) (value map[string]string, ok bool, err error) {
	raw, ok, err := mapValue(config, key)
	if !ok || err != nil {
		return nil, ok, err
	}
	value = map[string]string{}
	for k, v := range raw {
		switch v.(type) {
		case map[interface{}]interface{}, []interface{}:
			return nil, true, errors.Errorf("%s.%v must be a scalar", key, k)
		}
		value[fmt.Sprint(k)] = fmt.Sprint(v)
	}
	return value, true, nil
}

// normalizeYaml converts the map[string]interface{} values produced by yaml.v3 into the map[interface{}]interface{}
// form configuration sections are parsed from
func normalizeYaml(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		result := map[interface{}]interface{}{}
		for key, val := range v {
			result[key] = normalizeYaml(val)
		}
		return result
	case map[interface{}]interface{}:
		result := map[interface{}]interface{}{}
		for key, val := range v {
			result[key] = normalizeYaml(val)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = normalizeYaml(val)
		}
		return result
	default:
		return value
	}
}
