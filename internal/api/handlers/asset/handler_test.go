package asset

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/api/middleware"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/blobstore"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/previews"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/services"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identityHeader = "X-User-ID"

type testServer struct {
	router *gin.Engine
	blobs  *blobstore.LocalStore
}

func newTestServer(t *testing.T, maxSize int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	blobs := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, blobs.EnsureLocation(context.Background()))
	svc := services.NewAssetService(services.Options{
		Repo:        storage.NewMemoryStorage(),
		Blobs:       blobs,
		Constraints: services.Constraints{MaxSizeBytes: maxSize},
		Deriver:     previews.NewGenerator(blobs, 200, 80, 0),
	})
	h := NewHandler(svc, nil, maxSize)

	r := gin.New()
	r.GET("/api/health", h.Health)
	g := r.Group("/api/assets", middleware.RequireAuth(middleware.NewHeaderAuthenticator(identityHeader)))
	g.POST("", h.Upload)
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/:name", h.GetInfo)
	g.GET("/:name/download", h.Download)
	g.GET("/:name/thumbnail", h.Thumbnail)
	g.DELETE("/:name", h.Delete)

	return &testServer{router: r, blobs: blobs}
}

type part struct {
	name string
	data []byte
}

func (s *testServer) do(t *testing.T, method, path, user string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set(identityHeader, user)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, user, field string, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return s.do(t, http.MethodPost, "/api/assets", user, &buf, mw.FormDataContentType())
}

type uploadResponse struct {
	Results []UploadResult `json:"results"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func pngData(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 40))
	for x := 0; x < 60; x++ {
		img.Set(x, x%40, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var pdfData = []byte("%PDF-1.4\nhello from the handler tests\n")

func (s *testServer) mustUpload(t *testing.T, user, name string, data []byte) UploadResult {
	t.Helper()
	w := s.upload(t, user, "file", part{name, data})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[uploadResponse](t, w)
	require.Len(t, res.Results, 1)
	require.True(t, res.Results[0].Success, res.Results[0].Error)
	return res.Results[0]
}

func TestUpload_Single(t *testing.T) {
	s := newTestServer(t, 1<<20)
	res := s.mustUpload(t, "U1", "cat.png", pngData(t))

	assert.NotEmpty(t, res.StorageName)
	assert.Equal(t, "/api/assets/"+res.StorageName+"/download", res.URL)
	require.NotNil(t, res.File)
	assert.Equal(t, 60, res.File.Width)
	assert.Equal(t, 40, res.File.Height)
}

func TestUpload_BatchPartialFailure(t *testing.T) {
	s := newTestServer(t, 1<<20)
	elf := append([]byte("\x7fELF\x02\x01\x01"), make([]byte, 32)...)

	w := s.upload(t, "U1", "files", part{"a.pdf", pdfData}, part{"b.bin", elf}, part{"c.png", pngData(t)})
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[uploadResponse](t, w)
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	assert.Contains(t, res.Results[1].Error, "unsupported_type")
	assert.True(t, res.Results[2].Success)
}

func TestUpload_AllTooLarge(t *testing.T) {
	s := newTestServer(t, 64)
	w := s.upload(t, "U1", "file", part{"big.pdf", append(pdfData, make([]byte, 128)...)})

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func TestUpload_BodyCappedBeforeParsing(t *testing.T) {
	s := newTestServer(t, 64)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "huge.pdf")
	require.NoError(t, err)
	_, err = fw.Write(append(pdfData, make([]byte, 8<<20)...))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	total := int64(buf.Len())

	// unknown length, so the cap applies while streaming
	body := &countingReader{r: &buf}
	req := httptest.NewRequest(http.MethodPost, "/api/assets", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(identityHeader, "U1")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Less(t, body.n, total)
	assert.LessOrEqual(t, body.n, int64(20*64+multipartOverhead+4096))
}

func TestUpload_DeclaredBodyTooLarge(t *testing.T) {
	s := newTestServer(t, 64)
	req := httptest.NewRequest(http.MethodPost, "/api/assets", bytes.NewReader(nil))
	req.ContentLength = 64 << 20
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	req.Header.Set(identityHeader, "U1")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUpload_Rejections(t *testing.T) {
	s := newTestServer(t, 1<<20)

	w := s.upload(t, "", "file", part{"a.pdf", pdfData})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.upload(t, "U1", "other", part{"a.pdf", pdfData})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/assets", "U1", bytes.NewBufferString("not multipart"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetInfo(t *testing.T) {
	s := newTestServer(t, 1<<20)
	res := s.mustUpload(t, "U1", "report.pdf", pdfData)

	w := s.do(t, http.MethodGet, "/api/assets/"+res.StorageName, "U2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.Asset](t, w)
	assert.Equal(t, "report.pdf", got.OriginalName)
	assert.Equal(t, "U1", got.OwnerID)
	assert.NotContains(t, w.Body.String(), "storage_location")

	w = s.do(t, http.MethodGet, "/api/assets/unknown.pdf", "U1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownload(t *testing.T) {
	s := newTestServer(t, 1<<20)
	res := s.mustUpload(t, "U1", `weird"name.pdf`, pdfData)

	w := s.do(t, http.MethodGet, res.URL, "U1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pdfData, w.Body.Bytes())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="weird'name.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "38", w.Header().Get("Content-Length"))
}

func TestDownload_MissingBytesIsServerError(t *testing.T) {
	s := newTestServer(t, 1<<20)
	res := s.mustUpload(t, "U1", "report.pdf", pdfData)
	require.NoError(t, s.blobs.Delete(context.Background(), blobstore.AssetKey(res.StorageName)))

	w := s.do(t, http.MethodGet, res.URL, "U1", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), res.StorageName)
}

func TestThumbnail(t *testing.T) {
	s := newTestServer(t, 1<<20)
	img := s.mustUpload(t, "U1", "cat.png", pngData(t))
	doc := s.mustUpload(t, "U1", "report.pdf", pdfData)

	w := s.do(t, http.MethodGet, "/api/assets/"+img.StorageName+"/thumbnail", "U1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())

	w = s.do(t, http.MethodGet, "/api/assets/"+doc.StorageName+"/thumbnail", "U1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete(t *testing.T) {
	s := newTestServer(t, 1<<20)
	res := s.mustUpload(t, "U1", "report.pdf", pdfData)
	path := "/api/assets/" + res.StorageName

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, path, "U2", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, path, "U1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, path, "U1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, "U1", nil, "").Code)
}

func TestList(t *testing.T) {
	s := newTestServer(t, 1<<20)
	for i := 0; i < 25; i++ {
		s.mustUpload(t, "U1", "report.pdf", pdfData)
	}

	w := s.do(t, http.MethodGet, "/api/assets?page=1&limit=20", "U1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.AssetPage](t, w)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 2, page.Pages)

	w = s.do(t, http.MethodGet, "/api/assets?owner=U1", "U2", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(t, 1<<20)
	s.mustUpload(t, "U1", "report.pdf", pdfData)

	w := s.do(t, http.MethodGet, "/api/assets/stats", "U1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.OwnerStats](t, w)
	assert.Equal(t, "U1", stats.OwnerID)
	assert.Equal(t, int64(1), stats.AssetCount)
	assert.Equal(t, int64(len(pdfData)), stats.TotalBytes)

	w = s.do(t, http.MethodGet, "/api/assets/stats?owner=U1", "U2", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 1<<20)
	w := s.do(t, http.MethodGet, "/api/health", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHealth_DegradedHidesCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	missing := t.TempDir() + "/gone"
	svc := services.NewAssetService(services.Options{
		Repo:  storage.NewMemoryStorage(),
		Blobs: blobstore.NewLocalStore(missing),
	})
	r := gin.New()
	r.GET("/api/health", NewHandler(svc, nil, 0).Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"storage":"unavailable"`)
	assert.NotContains(t, w.Body.String(), missing)
	assert.NotContains(t, w.Body.String(), "no such file")
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&services.ValidationError{Kind: services.TooLarge}, http.StatusRequestEntityTooLarge},
		{&services.ValidationError{Kind: services.UnsupportedType}, http.StatusBadRequest},
		{&services.ValidationError{Kind: services.Infected}, http.StatusBadRequest},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrNoThumbnail, http.StatusNotFound},
		{services.ErrStorageInconsistency, http.StatusInternalServerError},
		{&services.IOError{Op: "write", StorageName: "x", Err: assert.AnError}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
}
