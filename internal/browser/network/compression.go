// Package network provides the HTTP side channel the session layer uses for
// login probes: a cookie-jar-backed client with transparent response
// decompression. Page interaction never goes through here; this exists so
// session validation does not have to spin up a browser tab.
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Reader pools keep per-probe allocations down; probes run on every
// validation interval for every platform.
var (
	gzipReaders = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaders = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
)

// drained detaches a pooled reader from its previous stream before the
// reader goes back in the pool. gzip.Reset(nil) reads a header and would
// panic, so an empty stream stands in for nil.
var drained = strings.NewReader("")

// CompressionMiddleware is an http.RoundTripper that advertises compression
// support on outgoing requests and transparently decompresses responses.
// The underlying transport must have its own compression handling disabled.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := DecompressResponse(resp); err != nil {
		// The body may be partially consumed at this point; the response is
		// unusable either way.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("response decompression failed: %w", err)
	}
	return resp, nil
}

// DecompressResponse wraps resp.Body with the decoders named by the
// Content-Encoding header, applied in reverse order for layered encodings.
// On return the response reads as plain text and the encoding headers are
// gone. On error the body must be treated as corrupted and discarded.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	layers := resp.Header.Values("Content-Encoding")
	if len(layers) == 0 {
		return nil
	}

	for i := len(layers) - 1; i >= 0; i-- {
		name := strings.ToLower(strings.TrimSpace(layers[i]))
		if name == "" || name == "identity" {
			continue
		}

		decoder, release, err := decoderFor(name, resp.Body)
		if err != nil {
			return fmt.Errorf("%s init: %w", name, err)
		}
		resp.Body = &layeredBody{
			ReadCloser: decoder,
			inner:      resp.Body,
			release:    release,
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// decoderFor opens a decoding reader for one Content-Encoding layer. The
// release callback, when non-nil, returns the pooled reader after Close.
func decoderFor(name string, src io.Reader) (io.ReadCloser, func(), error) {
	switch name {
	case "gzip":
		zr := gzipReaders.Get().(*gzip.Reader)
		if err := zr.Reset(src); err != nil {
			gzipReaders.Put(zr)
			return nil, nil, err
		}
		release := func() {
			_ = zr.Reset(drained)
			gzipReaders.Put(zr)
		}
		return zr, release, nil

	case "br":
		br := brotliReaders.Get().(*brotli.Reader)
		if err := br.Reset(src); err != nil {
			brotliReaders.Put(br)
			return nil, nil, err
		}
		release := func() {
			_ = br.Reset(drained)
			brotliReaders.Put(br)
		}
		// brotli.Reader has no Close.
		return io.NopCloser(br), release, nil

	case "deflate":
		rc, err := openDeflate(src)
		return rc, nil, err

	default:
		return nil, nil, fmt.Errorf("unsupported Content-Encoding layer %q", name)
	}
}

// layeredBody closes the decoder and the stream under it, and returns a
// pooled reader once both are done with it.
type layeredBody struct {
	io.ReadCloser
	inner   io.ReadCloser
	release func()
}

func (b *layeredBody) Close() error {
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(b.ReadCloser.Close(), b.inner.Close())
}

// openDeflate decodes "deflate" bodies, which in the wild are either
// zlib-wrapped (RFC 1950) or raw (RFC 1951, what old IIS servers send).
// The zlib attempt is probed against a replayable prefix so a raw stream
// loses nothing.
func openDeflate(src io.Reader) (io.ReadCloser, error) {
	var prefix bytes.Buffer
	probe := io.TeeReader(src, &prefix)

	if zr, err := zlib.NewReader(probe); err == nil {
		return zr, nil
	}

	replay := io.MultiReader(bytes.NewReader(prefix.Bytes()), src)
	return flate.NewReader(replay), nil
}
