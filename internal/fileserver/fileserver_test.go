package fileserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, nil, nil)
	require.NoError(t, err)

	r := mux.NewRouter()
	s.Register(r)
	return r
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	content := []byte("hello binary blob")
	body, contentType := multipartUpload(t, "greeting.txt", content)

	resp, err := http.Post(ts.URL+"/api/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Contains(t, out["file_url"], "/downloads/")

	downloadResp, err := http.Get(out["file_url"])
	require.NoError(t, err)
	defer downloadResp.Body.Close()
	require.Equal(t, http.StatusOK, downloadResp.StatusCode)

	got, err := io.ReadAll(downloadResp.Body)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestUploadRejectsMissingFilePart(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("not_a_file", "x"))
	require.NoError(t, w.Close())

	resp, err := http.Post(ts.URL+"/api/upload", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadUnknownFileIs404(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/downloads/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadPathTraversalIsConfinedToUploadDir(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/downloads/..%2F..%2Fetc%2Fpasswd")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTwoUploadsGetDistinctNames(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	upload := func() string {
		body, contentType := multipartUpload(t, "same-name.txt", []byte("data"))
		resp, err := http.Post(ts.URL+"/api/upload", contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out["file_url"]
	}

	first := upload()
	second := upload()
	require.NotEqual(t, first, second)
}
