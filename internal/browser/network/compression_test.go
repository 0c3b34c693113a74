package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeBody = `{"loggedIn":true,"user":"renter@example.com"}`

func gzipBytes(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func brotliBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, bw.Close())
	return buf.Bytes()
}

func zlibBytes(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func rawDeflateBytes(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	return buf.Bytes()
}

// newEncodingServer serves body with the given Content-Encoding header values.
func newEncodingServer(t *testing.T, body []byte, encodings ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, enc := range encodings {
			w.Header().Add("Content-Encoding", enc)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func middlewareGet(t *testing.T, url string) *http.Response {
	t.Helper()
	client := &http.Client{Transport: NewCompressionMiddleware(&http.Transport{DisableCompression: true})}
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// TestMiddlewareAdvertisesEncodings verifies the outgoing Accept-Encoding
// header is set unless the caller already chose one.
func TestMiddlewareAdvertisesEncodings(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Accept-Encoding")
	}))
	defer srv.Close()

	middlewareGet(t, srv.URL)
	assert.Equal(t, "br, gzip, deflate, identity", got)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "identity")
	client := &http.Client{Transport: NewCompressionMiddleware(&http.Transport{DisableCompression: true})}
	resp2, err := client.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "identity", got, "caller-chosen encoding must not be overwritten")
}

func TestMiddlewareDecompressesGzip(t *testing.T) {
	srv := newEncodingServer(t, gzipBytes(t, probeBody), "gzip")

	resp := middlewareGet(t, srv.URL)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, probeBody, string(body))
	assert.True(t, resp.Uncompressed)
	assert.Empty(t, resp.Header.Values("Content-Encoding"))
	assert.Equal(t, int64(-1), resp.ContentLength)
}

func TestMiddlewareDecompressesBrotli(t *testing.T) {
	srv := newEncodingServer(t, brotliBytes(t, []byte(probeBody)), "br")

	resp := middlewareGet(t, srv.URL)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, probeBody, string(body))
}

// TestMiddlewareDecompressesDeflateVariants covers both shapes servers send
// under the "deflate" token.
func TestMiddlewareDecompressesDeflateVariants(t *testing.T) {
	cases := []struct {
		name string
		body []byte
	}{
		{"zlib wrapped", zlibBytes(t, probeBody)},
		{"raw flate", rawDeflateBytes(t, probeBody)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newEncodingServer(t, tc.body, "deflate")
			resp := middlewareGet(t, srv.URL)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, probeBody, string(body))
		})
	}
}

// TestMiddlewareUnwrapsLayeredEncodings exercises reverse-order unwrapping of
// a stacked Content-Encoding chain.
func TestMiddlewareUnwrapsLayeredEncodings(t *testing.T) {
	// Applied gzip first, then brotli: the header reads "gzip, br" and the
	// decoder must peel brotli before gzip.
	layered := brotliBytes(t, gzipBytes(t, probeBody))
	srv := newEncodingServer(t, layered, "gzip", "br")

	resp := middlewareGet(t, srv.URL)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, probeBody, string(body))
}

func TestMiddlewarePassesIdentityThrough(t *testing.T) {
	srv := newEncodingServer(t, []byte(probeBody), "identity")

	resp := middlewareGet(t, srv.URL)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, probeBody, string(body))
}

func TestMiddlewareRejectsUnknownEncoding(t *testing.T) {
	srv := newEncodingServer(t, []byte("whatever"), "zstd")

	client := &http.Client{Transport: NewCompressionMiddleware(&http.Transport{DisableCompression: true})}
	resp, err := client.Get(srv.URL)
	if resp != nil {
		defer resp.Body.Close()
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported Content-Encoding")
}

func TestDecompressResponseNilSafe(t *testing.T) {
	assert.NoError(t, DecompressResponse(nil))
	assert.NoError(t, DecompressResponse(&http.Response{}))
}

// TestPooledReadersSurviveReuse runs several sequential exchanges so pooled
// gzip and brotli readers get reset and reused.
func TestPooledReadersSurviveReuse(t *testing.T) {
	gz := newEncodingServer(t, gzipBytes(t, probeBody), "gzip")
	br := newEncodingServer(t, brotliBytes(t, []byte(probeBody)), "br")

	for i := 0; i < 5; i++ {
		for _, url := range []string{gz.URL, br.URL} {
			resp := middlewareGet(t, url)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, probeBody, string(body))
			require.NoError(t, resp.Body.Close())
		}
	}
}

func TestLayeredBodyClosesBothLayers(t *testing.T) {
	inner := &recordingCloser{Reader: bytes.NewReader(nil)}
	outer := &recordingCloser{Reader: bytes.NewReader(nil)}
	released := false

	b := &layeredBody{
		ReadCloser: outer,
		inner:      inner,
		release:    func() { released = true },
	}
	require.NoError(t, b.Close())

	assert.True(t, inner.closed)
	assert.True(t, outer.closed)
	assert.True(t, released)

	// Double close must not return the pooled reader twice.
	released = false
	_ = b.Close()
	assert.False(t, released)
}

type recordingCloser struct {
	io.Reader
	closed bool
}

func (rc *recordingCloser) Close() error {
	rc.closed = true
	return nil
}
