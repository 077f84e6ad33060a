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
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/openziti/foundation/v2/concurrenz"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PathTable maps context paths to http.Handler's. Lookups never block: the table is copy-on-write, so a lookup racing
// an AddPath or RemovePath sees either the old or the new entry for that path.
type PathTable struct {
	paths concurrenz.CopyOnWriteMap[string, http.Handler]
}

// NewPathTable creates an empty PathTable
func NewPathTable() *PathTable {
	return &PathTable{}
}

// NormalizePath converts a context path to the form used as a PathTable key: a leading slash, no trailing slash and
// no dot segments. The empty path is the root path "/".
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// CleanRequestPath resolves dot segments and repeated slashes in a request path, keeping a trailing slash
func CleanRequestPath(p string) string {
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func validatePath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return errors.New("path must start with /")
	}
	if strings.ContainsAny(p, "?#") {
		return errors.New("path must not contain a query or fragment")
	}
	return nil
}

// AddPath registers handler at p. Registering an already registered path replaces its handler.
func (table *PathTable) AddPath(p string, handler http.Handler) error {
	if handler == nil {
		return errors.Errorf("nil handler for path [%s]", p)
	}

	key := NormalizePath(p)
	if err := validatePath(key); err != nil {
		return errors.Wrapf(err, "invalid path [%s]", p)
	}

	logrus.Debugf("adding path handler: %s", key)
	table.paths.Put(key, handler)
	return nil
}

// RemovePath removes the handler registered at p, if any
func (table *PathTable) RemovePath(p string) {
	key := NormalizePath(p)
	if table.paths.Get(key) == nil {
		return
	}
	logrus.Debugf("removing path handler: %s", key)
	table.paths.Delete(key)
}

// Resolve returns the handler registered at the longest path that prefixes requestPath on a segment boundary, along
// with that path. Dot segments and repeated slashes in requestPath are resolved before matching. found is false when
// nothing matches, which callers usually answer with a 404.
func (table *PathTable) Resolve(requestPath string) (handler http.Handler, contextPath string, found bool) {
	candidate := CleanRequestPath(requestPath)

	for {
		candidate = strings.TrimRight(candidate, "/")
		if candidate == "" {
			if handler = table.paths.Get("/"); handler != nil {
				return handler, "/", true
			}
			return nil, "", false
		}

		if handler = table.paths.Get(candidate); handler != nil {
			return handler, candidate, true
		}

		candidate = candidate[:strings.LastIndexByte(candidate, '/')]
	}
}

// Paths returns a sorted snapshot of all registered paths
func (table *PathTable) Paths() []string {
	var result []string
	for p, handler := range table.paths.AsMap() {
		if handler != nil {
			result = append(result, p)
		}
	}
	sort.Strings(result)
	return result
}

// Clear removes every registered path
func (table *PathTable) Clear() {
	table.paths.Clear()
}
