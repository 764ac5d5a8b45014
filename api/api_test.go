package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/anki-importer/api/handler"
	"github.com/fyerfyer/anki-importer/api/model"
	"github.com/fyerfyer/anki-importer/internal/ankiconnect"
	"github.com/fyerfyer/anki-importer/internal/cache"
	"github.com/fyerfyer/anki-importer/internal/database"
	"github.com/fyerfyer/anki-importer/internal/repository"
	"github.com/fyerfyer/anki-importer/internal/services"
	"github.com/fyerfyer/anki-importer/pkg/storage"
	"github.com/fyerfyer/anki-importer/pkg/taskqueue"
)

// 测试环境配置
type testEnv struct {
	Router  *gin.Engine
	Client  *ankiconnect.MockClient
	Service *services.ImportService
	Queue   taskqueue.Queue
}

// setupTestEnv 创建测试环境
// withHistory 为 false 时不配置导入记录和异步导入
func setupTestEnv(t *testing.T, withHistory bool) *testEnv {
	gin.SetMode(gin.TestMode)

	client := ankiconnect.NewMockClient(t)

	mem, err := cache.NewCache(cache.Config{
		Type:            "memory",
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, err)

	opts := []services.ImportOption{
		services.WithCache(mem, "test", time.Hour),
		services.WithConcurrency(2),
	}

	var queue taskqueue.Queue
	if withHistory {
		dsn := fmt.Sprintf("file:api_memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		require.NoError(t, err)
		require.NoError(t, database.AutoMigrate(db))

		fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
		require.NoError(t, err)

		mr := miniredis.RunT(t)
		queue, err = taskqueue.NewRedisQueue(&taskqueue.Config{RedisAddr: mr.Addr(), RetryLimit: 1})
		require.NoError(t, err)
		t.Cleanup(func() { queue.Close() })

		opts = append(opts,
			services.WithRepository(repository.NewImportRepositoryWithDB(db)),
			services.WithStorage(fileStorage),
			services.WithTaskQueue(queue),
		)
	}

	svc := services.NewImportService(client, opts...)
	router := SetupRouter(
		handler.NewImportHandler(svc),
		handler.NewTaskHandler(svc),
		handler.NewHealthHandler(svc, ankiconnect.DefaultEndpoint),
	)

	return &testEnv{Router: router, Client: client, Service: svc, Queue: queue}
}

func (e *testEnv) expectHealthyAnki(deck string) {
	e.Client.EXPECT().Ping(mock.Anything).Return(nil)
	e.Client.EXPECT().DeckNames(mock.Anything).Return([]string{deck}, nil)
	e.Client.EXPECT().ModelFieldNames(mock.Anything, mock.Anything).Return([]string{"Front", "Back", "Extras"}, nil)
	e.Client.EXPECT().AddNote(mock.Anything, mock.Anything).Return(int64(99), nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, model.Response) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

// decodeData 将响应中的 data 字段解码到 v
func decodeData(t *testing.T, resp model.Response, v interface{}) {
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func uploadRequest(t *testing.T, filename, content string, form map[string]string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	for k, v := range form {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports/file", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, false)
	env.Client.EXPECT().Version(mock.Anything).Return(6, nil).Once()
	env.Client.EXPECT().Version(mock.Anything).
		Return(0, ankiconnect.NewAnkiError(ankiconnect.ErrCodeConnection, "version", ankiconnect.ErrMsgConnection)).Once()

	w, resp := doJSON(t, env.Router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	var health model.HealthResponse
	decodeData(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Anki.Reachable)
	assert.Equal(t, 6, health.Anki.Version)
	assert.Equal(t, ankiconnect.DefaultEndpoint, health.Anki.Endpoint)

	_, resp = doJSON(t, env.Router, http.MethodGet, "/api/health", nil)
	decodeData(t, resp, &health)
	assert.Equal(t, "degraded", health.Status)
	assert.False(t, health.Anki.Reachable)
	assert.Contains(t, health.Anki.Error, "Connection failed")
}

func TestPreview(t *testing.T) {
	env := setupTestEnv(t, false)

	body := map[string]interface{}{
		"text": "intro\nFront: Q1\nBack: A1\nRefs: see p.3\n\nFront: incomplete\n",
		"field_map": map[string]string{
			"Refs": "Extras",
		},
	}
	w, resp := doJSON(t, env.Router, http.MethodPost, "/api/cards/preview", body)
	require.Equal(t, http.StatusOK, w.Code)

	var preview model.PreviewResponse
	decodeData(t, resp, &preview)
	assert.Equal(t, []string{"Front", "Back", "Extras"}, preview.Fields)
	assert.Equal(t, 1, preview.Count)
	assert.Equal(t, map[string]string{"Front": "Q1", "Back": "A1", "Extras": "see p.3"}, preview.Cards[0])

	t.Run("missing text", func(t *testing.T) {
		w, resp := doJSON(t, env.Router, http.MethodPost, "/api/cards/preview", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.NotEmpty(t, resp.TraceID)
	})
}

func TestImportText(t *testing.T) {
	env := setupTestEnv(t, true)
	env.expectHealthyAnki("Geo")

	w, resp := doJSON(t, env.Router, http.MethodPost, "/api/imports/text", map[string]interface{}{
		"text": "Front: Capital of Italy?\nBack: Rome\n\nFront: Capital of Spain?\nBack: Madrid",
		"deck": "Geo",
		"tags": []string{"geo"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary services.ImportSummary
	decodeData(t, resp, &summary)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, "2 flashcards added to Anki deck 'Geo'.", summary.Message)

	// 导入记录
	w, resp = doJSON(t, env.Router, http.MethodGet, "/api/imports?page=1&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list model.ImportListResponse
	decodeData(t, resp, &list)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 5, list.PageSize)
	require.Len(t, list.Imports, 1)
	assert.Equal(t, "completed", list.Imports[0].Status)

	w, resp = doJSON(t, env.Router, http.MethodGet, "/api/imports/"+summary.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail model.ImportDetailResponse
	decodeData(t, resp, &detail)
	assert.Equal(t, "Geo", detail.Deck)
	require.Len(t, detail.Notes, 2)
	assert.Equal(t, "Rome", detail.Notes[0].Fields["Back"])
	assert.Equal(t, int64(99), detail.Notes[1].NoteID)

	w, _ = doJSON(t, env.Router, http.MethodGet, "/api/imports/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Run("custom leading field", func(t *testing.T) {
		body := map[string]interface{}{
			"text":          "Q: one\nA: 1\nQ: two\nA: 2",
			"deck":          "Geo",
			"field_map":     map[string]string{"Q": "Front", "A": "Back"},
			"leading_field": "Q",
		}
		w, resp := doJSON(t, env.Router, http.MethodPost, "/api/cards/preview", body)
		require.Equal(t, http.StatusOK, w.Code)
		var preview model.PreviewResponse
		decodeData(t, resp, &preview)
		assert.Equal(t, 2, preview.Count)

		w, resp = doJSON(t, env.Router, http.MethodPost, "/api/imports/text", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var summary services.ImportSummary
		decodeData(t, resp, &summary)
		assert.Equal(t, preview.Count, summary.Added)
	})
}

func TestDeleteImport(t *testing.T) {
	env := setupTestEnv(t, true)
	env.expectHealthyAnki("Geo")

	w, resp := doJSON(t, env.Router, http.MethodPost, "/api/imports/text", map[string]interface{}{
		"text": "Front: Q\nBack: A",
		"deck": "Geo",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary services.ImportSummary
	decodeData(t, resp, &summary)

	w, _ = doJSON(t, env.Router, http.MethodDelete, "/api/imports/"+summary.JobID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, env.Router, http.MethodGet, "/api/imports/"+summary.JobID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, env.Router, http.MethodDelete, "/api/imports/"+summary.JobID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Run("history disabled", func(t *testing.T) {
		env := setupTestEnv(t, false)
		w, _ := doJSON(t, env.Router, http.MethodDelete, "/api/imports/any", nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

func TestImportText_Errors(t *testing.T) {
	env := setupTestEnv(t, false)

	t.Run("no flashcards", func(t *testing.T) {
		w, resp := doJSON(t, env.Router, http.MethodPost, "/api/imports/text", map[string]string{"text": "hello"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("invalid fields", func(t *testing.T) {
		w, _ := doJSON(t, env.Router, http.MethodPost, "/api/imports/text", map[string]interface{}{
			"text":   "Front: Q\nBack: A",
			"fields": []string{"Front"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("anki down", func(t *testing.T) {
		env.Client.EXPECT().Ping(mock.Anything).
			Return(ankiconnect.NewAnkiError(ankiconnect.ErrCodeTimeout, "version", ankiconnect.ErrMsgTimeout)).Once()
		w, _ := doJSON(t, env.Router, http.MethodPost, "/api/imports/text", map[string]string{"text": "Front: Q\nBack: A"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("history disabled", func(t *testing.T) {
		w, _ := doJSON(t, env.Router, http.MethodGet, "/api/imports", nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

func TestImportFile(t *testing.T) {
	env := setupTestEnv(t, true)
	content := "---\ndeck: Uploaded\n---\n\nFront: Q\nBack: A\n"

	t.Run("sync", func(t *testing.T) {
		env.expectHealthyAnki("Uploaded")

		w := httptest.NewRecorder()
		env.Router.ServeHTTP(w, uploadRequest(t, "cards.md", content, map[string]string{"tags": "a, b"}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp model.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		var summary services.ImportSummary
		decodeData(t, resp, &summary)
		assert.Equal(t, "Uploaded", summary.Deck)
		assert.Equal(t, 1, summary.Added)
	})

	t.Run("async", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.Router.ServeHTTP(w, uploadRequest(t, "cards.txt", content, map[string]string{
			"async":           "true",
			"allow_duplicate": "true",
		}))
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

		var resp model.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		var accepted model.AsyncImportResponse
		decodeData(t, resp, &accepted)
		assert.Equal(t, "pending", accepted.Status)
		require.NotEmpty(t, accepted.TaskID)

		w2, taskResp := doJSON(t, env.Router, http.MethodGet, "/api/tasks/"+accepted.TaskID, nil)
		require.Equal(t, http.StatusOK, w2.Code)
		var info taskqueue.TaskInfo
		decodeData(t, taskResp, &info)
		assert.Equal(t, accepted.JobID, info.JobID)
		assert.Equal(t, taskqueue.TaskImportFile, info.Type)

		task, err := env.Queue.GetTask(context.Background(), accepted.TaskID)
		require.NoError(t, err)
		var payload taskqueue.ImportFilePayload
		require.NoError(t, taskqueue.UnmarshalPayload(task.Payload, &payload))
		require.NotNil(t, payload.AllowDuplicate)
		assert.True(t, *payload.AllowDuplicate)

		// 没有工作者处理，等待超时后返回当前状态
		w2, taskResp = doJSON(t, env.Router, http.MethodGet, "/api/tasks/"+accepted.TaskID+"?wait=1", nil)
		require.Equal(t, http.StatusOK, w2.Code)
		decodeData(t, taskResp, &info)
		assert.Equal(t, taskqueue.StatusPending, info.Status)

		w2, _ = doJSON(t, env.Router, http.MethodGet, "/api/tasks/"+accepted.TaskID+"?wait=600", nil)
		assert.Equal(t, http.StatusBadRequest, w2.Code)
	})

	t.Run("unsupported", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.Router.ServeHTTP(w, uploadRequest(t, "cards.docx", content, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown task", func(t *testing.T) {
		w, _ := doJSON(t, env.Router, http.MethodGet, "/api/tasks/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
