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
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/debugz"
)

func (host *Host) wrapHandler(handler http.Handler) http.Handler {
	//innermost/bottom -> outermost/top
	if host.compression {
		handler = wrapCompression(handler)
	}
	handler = host.wrapPanicRecovery(handler)
	return handler
}

// wrapPanicRecovery wraps a http.Handler with another http.Handler that provides recovery.
func (host *Host) wrapPanicRecovery(handler http.Handler) http.Handler {
	wrappedHandler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		defer func() {
			if panicVal := recover(); panicVal != nil {
				if host.OnHandlerPanic != nil {
					host.OnHandlerPanic(writer, request, panicVal)
					return
				}
				pfxlog.Logger().WithField("host", host.name).Errorf("panic caught by host handler: %v\n%v", panicVal, debugz.GenerateLocalStack())
				writer.WriteHeader(http.StatusInternalServerError)
			}
		}()

		handler.ServeHTTP(writer, request)
	})

	return wrappedHandler
}

// wrapCompression negotiates brotli or gzip from the request's Accept-Encoding header and compresses the response
// body accordingly. The encoder is picked on the first body write, once the wrapped handler has set its headers.
// Responses without a body, responses that already carry a Content-Encoding and clients that accept neither encoding
// pass through untouched.
func wrapCompression(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		compressingWriter := &compressingResponseWriter{ResponseWriter: writer, request: request}
		handler.ServeHTTP(compressingWriter, request)

		//not reached on panic, the recovery handler answers on the raw writer instead
		if err := compressingWriter.Close(); err != nil {
			pfxlog.Logger().WithField("path", request.URL.Path).Debugf("could not finish compressed response: %v", err)
		}
	})
}

type compressingResponseWriter struct {
	http.ResponseWriter
	request    *http.Request
	statusCode int
	body       io.WriteCloser
}

// WriteHeader only records the status, the header goes out with the first body write or on Close
func (w *compressingResponseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
}

func (w *compressingResponseWriter) Write(b []byte) (int, error) {
	if w.body == nil {
		w.start(b)
	}
	return w.body.Write(b)
}

func (w *compressingResponseWriter) start(firstChunk []byte) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}

	header := w.Header()
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", http.DetectContentType(firstChunk))
	}

	if header.Get("Content-Encoding") != "" {
		w.body = nopWriteCloser{Writer: w.ResponseWriter}
	} else {
		w.body = brotli.HTTPCompressor(w.ResponseWriter, w.request)
	}

	//lengths set by the wrapped handler describe the uncompressed body
	if _, passThrough := w.body.(nopWriteCloser); !passThrough && header.Get("Content-Encoding") != "" {
		header.Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(w.statusCode)
}

// Close flushes the encoder, or sends the recorded status when the handler wrote no body
func (w *compressingResponseWriter) Close() error {
	if w.body == nil {
		if w.statusCode != 0 {
			w.ResponseWriter.WriteHeader(w.statusCode)
		}
		return nil
	}
	return w.body.Close()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
