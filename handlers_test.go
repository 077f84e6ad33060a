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
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

func newCompressingHost(t *testing.T) *Host {
	host := NewHost("compressed", nil, nil, WithCompression())
	body := strings.Repeat("xhost ", 200)

	req := require.New(t)
	req.NoError(host.Start())
	req.NoError(host.RegisterHandler("/", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		writer.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = io.WriteString(writer, body)
	})))
	req.NoError(host.RegisterHandler("/sniffed", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = io.WriteString(writer, body)
	})))
	req.NoError(host.RegisterHandler("/created", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/plain")
		writer.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(writer, body)
	})))
	req.NoError(host.RegisterHandler("/empty", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})))
	req.NoError(host.RegisterHandler("/encoded", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Encoding", "identity")
		writer.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = io.WriteString(writer, body)
	})))
	return host
}

func TestHost_Compression(t *testing.T) {
	expected := strings.Repeat("xhost ", 200)

	requestPath := func(host *Host, target, acceptEncoding string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		if acceptEncoding != "" {
			r.Header.Set("Accept-Encoding", acceptEncoding)
		}
		recorder := httptest.NewRecorder()
		host.ServeHTTP(recorder, r)
		return recorder
	}
	request := func(host *Host, acceptEncoding string) *httptest.ResponseRecorder {
		return requestPath(host, "/", acceptEncoding)
	}

	t.Run("brotli is preferred", func(t *testing.T) {
		recorder := request(newCompressingHost(t), "gzip, br")

		req := require.New(t)
		req.Equal("br", recorder.Header().Get("Content-Encoding"))
		req.Empty(recorder.Header().Get("Content-Length"))

		body, err := io.ReadAll(brotli.NewReader(recorder.Body))
		req.NoError(err)
		req.Equal(expected, string(body))
	})

	t.Run("gzip is used when brotli is not accepted", func(t *testing.T) {
		recorder := request(newCompressingHost(t), "gzip")

		req := require.New(t)
		req.Equal("gzip", recorder.Header().Get("Content-Encoding"))

		reader, err := gzip.NewReader(recorder.Body)
		req.NoError(err)
		body, err := io.ReadAll(reader)
		req.NoError(err)
		req.Equal(expected, string(body))
	})

	t.Run("identity responses pass through", func(t *testing.T) {
		recorder := request(newCompressingHost(t), "")

		req := require.New(t)
		req.Empty(recorder.Header().Get("Content-Encoding"))
		req.Equal(expected, recorder.Body.String())
	})

	t.Run("responses without a content type are sniffed and compressed", func(t *testing.T) {
		recorder := requestPath(newCompressingHost(t), "/sniffed", "br")

		req := require.New(t)
		req.Equal("br", recorder.Header().Get("Content-Encoding"))
		req.Equal("text/plain; charset=utf-8", recorder.Header().Get("Content-Type"))

		body, err := io.ReadAll(brotli.NewReader(recorder.Body))
		req.NoError(err)
		req.Equal(expected, string(body))
	})

	t.Run("the handler's status code is kept", func(t *testing.T) {
		recorder := requestPath(newCompressingHost(t), "/created", "gzip")

		req := require.New(t)
		req.Equal(http.StatusCreated, recorder.Code)
		req.Equal("gzip", recorder.Header().Get("Content-Encoding"))
	})

	t.Run("responses without a body are not encoded", func(t *testing.T) {
		recorder := requestPath(newCompressingHost(t), "/empty", "br")

		req := require.New(t)
		req.Equal(http.StatusNoContent, recorder.Code)
		req.Empty(recorder.Header().Get("Content-Encoding"))
		req.Empty(recorder.Body.Bytes())
	})

	t.Run("responses that are already encoded pass through", func(t *testing.T) {
		recorder := requestPath(newCompressingHost(t), "/encoded", "br")

		req := require.New(t)
		req.Equal("identity", recorder.Header().Get("Content-Encoding"))
		req.Equal(strconv.Itoa(len(expected)), recorder.Header().Get("Content-Length"))
		req.Equal(expected, recorder.Body.String())
	})

	t.Run("compression is off by default", func(t *testing.T) {
		host := NewHost("plain", nil, nil)
		req := require.New(t)
		req.NoError(host.Start())
		req.NoError(host.RegisterHandler("/", namedHandler("plain")))

		recorder := request(host, "br")
		req.Empty(recorder.Header().Get("Content-Encoding"))
		req.Equal("plain", recorder.Body.String())
	})
}

func TestHost_PanicRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	})

	t.Run("a panicking handler answers 500", func(t *testing.T) {
		host := NewHost("panics", nil, nil)
		req := require.New(t)
		req.NoError(host.Start())
		req.NoError(host.RegisterHandler("/", panicking))

		code, _ := get(t, host, "/")
		req.Equal(http.StatusInternalServerError, code)
	})

	t.Run("a panic behind compression still answers 500", func(t *testing.T) {
		host := NewHost("panics", nil, nil, WithCompression())
		req := require.New(t)
		req.NoError(host.Start())
		req.NoError(host.RegisterHandler("/", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusAccepted)
			panic("handler exploded")
		})))

		code, _ := get(t, host, "/")
		req.Equal(http.StatusInternalServerError, code)
	})

	t.Run("a custom panic handler is used when set", func(t *testing.T) {
		var recovered interface{}
		host := NewHost("panics", nil, nil, WithPanicHandler(func(writer http.ResponseWriter, request *http.Request, panicVal interface{}) {
			recovered = panicVal
			writer.WriteHeader(http.StatusTeapot)
		}))
		req := require.New(t)
		req.NoError(host.Start())
		req.NoError(host.RegisterHandler("/", panicking))

		code, _ := get(t, host, "/")
		req.Equal(http.StatusTeapot, code)
		req.Equal("handler exploded", recovered)
	})
}
