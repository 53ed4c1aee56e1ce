package depot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"depot/internal/store"
)

// newTestServer creates a Server backed by an in-memory store.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv, err := NewServer(Config{Store: store.NewMemoryStore()})
	require.NoError(t, err, "NewServer error")

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return httpSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err, "marshal request body")
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "creating request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	require.NoError(t, err, "request error")
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v), "decoding response body")
	return v
}

func prepareUpload(t *testing.T, httpSrv *httptest.Server, filename, contentType string, size int64) string {
	t.Helper()

	resp := doJSON(t, httpSrv.Client(), http.MethodPost, httpSrv.URL+"/uploads", prepareRequest{
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "prepare status")

	body := decodeBody[prepareResponse](t, resp)
	require.NotEmpty(t, body.UploadID, "uploadId must be returned")
	return body.UploadID
}

func uploadChunk(t *testing.T, httpSrv *httptest.Server, uploadID string, index int, data []byte) *http.Response {
	t.Helper()

	url := fmt.Sprintf("%s/uploads/%s/chunks/%d", httpSrv.URL, uploadID, index)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	require.NoError(t, err, "creating chunk request")

	resp, err := httpSrv.Client().Do(req)
	require.NoError(t, err, "chunk request error")
	return resp
}

func TestUploadScenarioEndToEnd(t *testing.T) {
	t.Parallel()
	httpSrv := newTestServer(t)

	bytesA := bytes.Repeat([]byte("A"), 1000)
	bytesB := bytes.Repeat([]byte("B"), 500)

	uploadID := prepareUpload(t, httpSrv, "report.pdf", "application/pdf", 25_000_000)

	for i, chunk := range [][]byte{bytesA, bytesB} {
		resp := uploadChunk(t, httpSrv, uploadID, i, chunk)
		resp.Body.Close()
		require.Equalf(t, http.StatusOK, resp.StatusCode, "chunk %d status", i)
	}

	resp := doJSON(t, httpSrv.Client(), http.MethodPost, httpSrv.URL+"/uploads/"+uploadID+"/complete", completeRequest{
		Filename:   "report.pdf",
		ChunkCount: 2,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "complete status")

	// The catalog reflects the new object.
	resp, err := httpSrv.Client().Get(httpSrv.URL + "/files")
	require.NoError(t, err, "GET /files error")
	require.Equal(t, http.StatusOK, resp.StatusCode, "list status")

	list := decodeBody[listResponse](t, resp)
	require.Len(t, list.Files, 1)
	require.Equal(t, "report.pdf", list.Files[0].Name)
	require.EqualValues(t, len(bytesA)+len(bytesB), list.Files[0].Size)

	// The download matches the exact concatenation.
	resp, err = httpSrv.Client().Get(httpSrv.URL + "/files/report.pdf")
	require.NoError(t, err, "GET /files/report.pdf error")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "download status")
	require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "reading download body")
	require.Equal(t, append(append([]byte{}, bytesA...), bytesB...), data)
}

func TestPrepareRejectsEmptyFilename(t *testing.T) {
	t.Parallel()
	httpSrv := newTestServer(t)

	resp := doJSON(t, httpSrv.Client(), http.MethodPost, httpSrv.URL+"/uploads", prepareRequest{Filename: ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	require.Equal(t, "InvalidRequest", body.Code)
}

func TestUploadChunkUnknownSession(t *testing.T) {
	t.Parallel()
	httpSrv := newTestServer(t)

	resp := uploadChunk(t, httpSrv, "does-not-exist", 0, []byte("data"))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	require.Equal(t, "SessionNotFound", body.Code)
}

func TestUploadChunkInvalidIndex(t *testing.T) {
	t.Parallel()
	httpSrv := newTestServer(t)

	uploadID := prepareUpload(t, httpSrv, "f.txt", "", 10)

	url := fmt.Sprintf("%s/uploads/%s/chunks/notanumber", httpSrv.URL, uploadID)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	resp, err := httpSrv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	require.Equal(t, "InvalidRequest", body.Code)
}

func TestCompleteReportsMissingChunk(t *testing.T) {
	t.Parallel()
	httpSrv := newTestServer(t)

	uploadID := prepareUpload(t, httpSrv, "gap.bin", "", 100)

	resp := uploadChunk(t, httpSrv, uploadID, 0, []byte("zero"))
	resp.Body.Close()
	resp = uploadChunk(t, httpSrv, uploadID, 2, []byte("two"))
	resp.Body.Close()

	resp = doJSON(t, httpSrv.Client(), http.MethodPost, httpSrv.URL+"/uploads/"+uploadID+"/complete", completeRequest{
		Filename:   "gap.bin",
		ChunkCount: 3,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	require.Equal(t, "MissingChunk", body.Code)
	require.NotNil(t, body.MissingChunk)
	require.Equal(t, 1, *body.MissingChunk, "the first gap index must be reported")
}

func TestCompleteUnknownSession(t *testing.T) {
	t.Parallel()
	httpSrv := newTestServer(t)

	resp := doJSON(t, httpSrv.Client(), http.MethodPost, httpSrv.URL+"/uploads/nope/complete", completeRequest{
		Filename:   "f.txt",
		ChunkCount: 1,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	require.Equal(t, "SessionNotFound", body.Code)
}

func TestDownloadMissingFile(t *testing.T) {
	t.Parallel()
	httpSrv := newTestServer(t)

	resp, err := httpSrv.Client().Get(httpSrv.URL + "/files/absent.txt")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	require.Equal(t, "FileNotFound", body.Code)
}

func TestAbortEndpointSweepsUpload(t *testing.T) {
	t.Parallel()
	httpSrv := newTestServer(t)

	uploadID := prepareUpload(t, httpSrv, "gone.txt", "", 10)
	resp := uploadChunk(t, httpSrv, uploadID, 0, []byte("x"))
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, httpSrv.URL+"/uploads/"+uploadID+"?chunkCount=1", nil)
	require.NoError(t, err)

	resp, err = httpSrv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The session no longer resolves, so further chunks are rejected.
	resp = uploadChunk(t, httpSrv, uploadID, 1, []byte("y"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
