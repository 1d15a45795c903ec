// Package gzippedhttp provides middleware that transparently decompresses
// gzip request bodies and compresses responses for clients that accept it.
// Event streams are left uncompressed so every event reaches the client as
// soon as it is flushed.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

const eventStreamContentType = "text/event-stream"

// CompressedReader wraps an io.ReadCloser and decompresses its input using gzip.
type CompressedReader struct {
	r  io.ReadCloser
	zr *gzip.Reader
}

// NewCompressedReader returns a CompressedReader over a gzip-compressed body.
func NewCompressedReader(requestBody io.ReadCloser) (*CompressedReader, error) {
	zr, err := gzip.NewReader(requestBody)
	if err != nil {
		return nil, err
	}

	return &CompressedReader{
		r:  requestBody,
		zr: zr,
	}, nil
}

func (c *CompressedReader) Read(p []byte) (n int, err error) {
	return c.zr.Read(p)
}

// Close closes both the gzip reader and the underlying body.
func (c *CompressedReader) Close() error {
	if err := c.r.Close(); err != nil {
		return err
	}
	return c.zr.Close()
}

// CompressedHTTPResponseWriter compresses the response body. The decision is
// taken on the first WriteHeader/Write: error statuses and event streams are
// passed through untouched.
type CompressedHTTPResponseWriter struct {
	w          http.ResponseWriter
	zw         *gzip.Writer
	decided    bool
	compressed bool
}

func NewCompressedHTTPResponseWriter(w http.ResponseWriter) *CompressedHTTPResponseWriter {
	return &CompressedHTTPResponseWriter{w: w}
}

func (c *CompressedHTTPResponseWriter) decide(statusCode int) {
	if c.decided {
		return
	}
	c.decided = true

	contentType := c.w.Header().Get("Content-Type")
	if statusCode >= 300 || strings.HasPrefix(contentType, eventStreamContentType) {
		return
	}

	c.compressed = true
	c.w.Header().Set("Content-Encoding", "gzip")
	c.w.Header().Del("Content-Length")
	c.zw = gzipWriterPool.Get().(*gzip.Writer)
	c.zw.Reset(c.w)
}

func (c *CompressedHTTPResponseWriter) WriteHeader(statusCode int) {
	c.decide(statusCode)
	c.w.WriteHeader(statusCode)
}

func (c *CompressedHTTPResponseWriter) Write(p []byte) (int, error) {
	if !c.decided {
		c.WriteHeader(http.StatusOK)
	}
	if !c.compressed {
		return c.w.Write(p)
	}
	return c.zw.Write(p)
}

func (c *CompressedHTTPResponseWriter) Header() http.Header {
	return c.w.Header()
}

// Flush pushes buffered compressed bytes to the client.
func (c *CompressedHTTPResponseWriter) Flush() {
	if c.compressed {
		_ = c.zw.Flush()
	}
	if flusher, ok := c.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Close finishes the gzip stream and returns the writer to the pool.
func (c *CompressedHTTPResponseWriter) Close() error {
	if !c.compressed {
		return nil
	}
	if err := c.zw.Close(); err != nil {
		return err
	}
	gzipWriterPool.Put(c.zw)
	c.zw = nil
	c.compressed = false

	return nil
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

// GzipResponse compresses responses for clients sending "Accept-Encoding: gzip".
func GzipResponse(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		finalResponse := response

		clientAcceptsGzip := strings.Contains(request.Header.Get("Accept-Encoding"), "gzip")
		if clientAcceptsGzip {
			compressedResponse := NewCompressedHTTPResponseWriter(response)
			finalResponse = compressedResponse
			defer compressedResponse.Close()
		}

		h.ServeHTTP(finalResponse, request)
	}

	return http.HandlerFunc(middleware)
}

// UngzipRequest replaces a "Content-Encoding: gzip" request body with a
// decompressing reader.
func UngzipRequest(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		clientSendsGzippedData := strings.Contains(request.Header.Get("Content-Encoding"), "gzip")
		if clientSendsGzippedData {
			requestBody, err := NewCompressedReader(request.Body)
			if err != nil {
				http.Error(response, "malformed gzip body", http.StatusBadRequest)
				return
			}
			request.Body = requestBody
			defer requestBody.Close()
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
