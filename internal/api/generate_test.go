package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adatry/adatry/internal/models"
)

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		fw, err := w.CreateFormFile("image", "person.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func postMultipart(server *Server, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", contentType)
	server.router.ServeHTTP(w, req)
	return w
}

func TestHandleGenerateUnknownProvider(t *testing.T) {
	server, _ := setupTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"prompt": "red dress"}, nil)
	w := postMultipart(server, "/generations/dalle", body, contentType)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown provider")
}

func TestHandleGenerateMissingInput(t *testing.T) {
	server, _ := setupTestServer(t)

	body, contentType := multipartBody(t, nil, nil)
	w := postMultipart(server, "/generations/qwen", body, contentType)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGenerateNoCredentials(t *testing.T) {
	server, _ := setupTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"prompt": "red dress"}, nil)
	w := postMultipart(server, "/generations/qwen", body, contentType)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no credentials configured")
}

func TestHandleGenerateWardrobeRequiresClothingID(t *testing.T) {
	server, _ := setupTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"prompt": "try this on"}, []byte("fake-image"))
	w := postMultipart(server, "/generations/wardrobe", body, contentType)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "clothing_id")
}

func TestHandleGenerateQwenSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output":{"results":[{"url":"https://img.example/result.png"}]}}`))
	}))
	defer upstream.Close()

	server, mem := setupTestServer(t)
	mem.SetCredential(&models.Credential{
		ID: "cred-a", Provider: models.ProviderQwen, Token: "sk-test", Endpoint: upstream.URL,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})

	body, contentType := multipartBody(t, map[string]string{"prompt": "red dress"}, nil)
	w := postMultipart(server, "/generations/qwen", body, contentType)

	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "qwen", resp.Provider)
	assert.Equal(t, "https://img.example/result.png", resp.ImageURL)
	assert.Empty(t, resp.ImageBase64)

	cred, ok := mem.GetCredential("cred-a")
	require.True(t, ok)
	assert.Equal(t, int64(1), cred.UsageCount)
}

func TestHandleGenerateUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"throttled"}`, http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	server, mem := setupTestServer(t)
	mem.SetCredential(&models.Credential{
		ID: "cred-a", Provider: models.ProviderQwen, Token: "sk-test", Endpoint: upstream.URL,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})

	body, contentType := multipartBody(t, map[string]string{"prompt": "red dress"}, nil)
	w := postMultipart(server, "/generations/qwen", body, contentType)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "processing failed")

	// Usage is still charged for the failed attempt
	cred, ok := mem.GetCredential("cred-a")
	require.True(t, ok)
	assert.Equal(t, int64(1), cred.UsageCount)
}

func TestHandleGenerateWithImageUpload(t *testing.T) {
	var gotImage bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Input struct {
				Image string `json:"image"`
			} `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil && payload.Input.Image != "" {
			gotImage = true
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output":{"results":[{"url":"https://img.example/result.png"}]}}`))
	}))
	defer upstream.Close()

	server, mem := setupTestServer(t)
	mem.SetCredential(&models.Credential{
		ID: "cred-a", Provider: models.ProviderQwen, Token: "sk-test", Endpoint: upstream.URL,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})

	body, contentType := multipartBody(t, map[string]string{"prompt": "swap outfit"}, []byte("fake-png-bytes"))
	w := postMultipart(server, "/generations/qwen", body, contentType)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotImage)
}
