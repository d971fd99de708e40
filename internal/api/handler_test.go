package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/schemahub/registry/internal/registry"
	avrofmt "github.com/schemahub/registry/internal/registry/formats/avro"
	protofmt "github.com/schemahub/registry/internal/registry/formats/protobuf"
	"github.com/schemahub/registry/internal/registry/store"
)

const (
	userV1 = `{"type":"record","name":"User","fields":[{"name":"name","type":"string"}]}`
	userV2 = `{"type":"record","name":"User","fields":[{"name":"name","type":"string"},{"name":"age","type":"int","default":0}]}`
	// userBreaking adds a field without a default.
	userBreaking = `{"type":"record","name":"User","fields":[{"name":"name","type":"string"},{"name":"email","type":"string"}]}`
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore(registry.ModeBackward)
	formats := registry.NewFormatRegistry()
	formats.RegisterFormat(registry.FormatAvro, avrofmt.NewCanonicalizer(), avrofmt.NewChecker())
	formats.RegisterFormat(registry.FormatProtobuf, protofmt.NewCanonicalizer(), protofmt.NewChecker())

	r := gin.New()
	NewService(registry.New(st, formats)).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func registerSchema(t *testing.T, r *gin.Engine, subject, schema string) int64 {
	t.Helper()

	resp := doJSON(t, r, http.MethodPost, "/subjects/"+subject+"/versions", SchemaRequest{Schema: schema})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body RegisterResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.ID
}

func TestHandleRegister(t *testing.T) {
	r := newTestRouter(t)

	id1 := registerSchema(t, r, "users-value", userV1)
	require.Equal(t, int64(1), id1)

	// Idempotent: the same schema resolves to the same id.
	require.Equal(t, id1, registerSchema(t, r, "users-value", userV1))

	id2 := registerSchema(t, r, "users-value", userV2)
	require.NotEqual(t, id1, id2)
}

func TestHandleRegister_Errors(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		body      interface{}
		wantCode  int
		wantError string
	}{
		{
			name:      "scope key without type suffix",
			path:      "/subjects/users/versions",
			body:      SchemaRequest{Schema: userV1},
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_argument",
		},
		{
			name:      "malformed schema",
			path:      "/subjects/users-value/versions",
			body:      SchemaRequest{Schema: `{"type":"record"`},
			wantCode:  http.StatusUnprocessableEntity,
			wantError: "invalid_schema",
		},
		{
			name:      "empty schema",
			path:      "/subjects/users-value/versions",
			body:      SchemaRequest{},
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_argument",
		},
		{
			name:      "invalid json body",
			path:      "/subjects/users-value/versions",
			body:      "not-an-object",
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_argument",
		},
		{
			name:      "unsupported schema type",
			path:      "/subjects/users-value/versions",
			body:      SchemaRequest{Schema: userV1, SchemaType: "THRIFT"},
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			resp := doJSON(t, r, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantCode, resp.Code, resp.Body.String())

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestHandleRegister_IncompatibleSchema(t *testing.T) {
	r := newTestRouter(t)
	registerSchema(t, r, "users-value", userV1)

	resp := doJSON(t, r, http.MethodPost, "/subjects/users-value/versions", SchemaRequest{Schema: userBreaking})
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "incompatible_schema", body["error"])
	require.Contains(t, body, "details")

	// The rejected schema left no version behind.
	resp = doJSON(t, r, http.MethodGet, "/subjects/users-value/versions", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var versions []int
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &versions))
	require.Equal(t, []int{1}, versions)
}

func TestHandleLookup(t *testing.T) {
	r := newTestRouter(t)
	id := registerSchema(t, r, "users-value", userV1)

	resp := doJSON(t, r, http.MethodPost, "/subjects/users-value", SchemaRequest{Schema: userV1})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body SchemaInfoResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "users-value", body.Subject)
	require.Equal(t, 1, body.Version)
	require.Equal(t, id, body.ID)
	require.Equal(t, "AVRO", body.SchemaType)
	require.Equal(t, userV1, body.Schema)

	// Valid but unregistered content is a 404, not a registration.
	resp = doJSON(t, r, http.MethodPost, "/subjects/users-value", SchemaRequest{Schema: userV2})
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandleGetVersionAndSchemaByID(t *testing.T) {
	r := newTestRouter(t)
	id := registerSchema(t, r, "users-value", userV1)
	registerSchema(t, r, "users-value", userV2)

	resp := doJSON(t, r, http.MethodGet, "/subjects/users-value/versions/latest", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var info SchemaInfoResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &info))
	require.Equal(t, 2, info.Version)
	require.Equal(t, userV2, info.Schema)

	resp = doJSON(t, r, http.MethodGet, "/subjects/users-value/versions/1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &info))
	require.Equal(t, 1, info.Version)
	require.Equal(t, userV1, info.Schema)

	resp = doJSON(t, r, http.MethodGet, fmt.Sprintf("/schemas/ids/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var byID map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &byID))
	require.Equal(t, userV1, byID["schema"])
	require.Equal(t, "AVRO", byID["schemaType"])

	resp = doJSON(t, r, http.MethodGet, "/schemas/ids/999", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/schemas/ids/abc", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/subjects/users-value/versions/99", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/subjects/ghost-value/versions/latest", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandleListSubjects(t *testing.T) {
	r := newTestRouter(t)
	registerSchema(t, r, "users-value", userV1)
	registerSchema(t, r, "users-key", userV1)

	resp := doJSON(t, r, http.MethodGet, "/subjects", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var subjects []string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &subjects))
	require.Equal(t, []string{"users-key", "users-value"}, subjects)
}

func TestHandleDelete(t *testing.T) {
	r := newTestRouter(t)
	registerSchema(t, r, "users-value", userV1)
	registerSchema(t, r, "users-value", userV2)

	resp := doJSON(t, r, http.MethodDelete, "/subjects/users-value/versions/2", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var deleted int
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &deleted))
	require.Equal(t, 2, deleted)

	resp = doJSON(t, r, http.MethodDelete, "/subjects/users-value", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var deletedAll []int
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &deletedAll))
	require.Equal(t, []int{1}, deletedAll)

	resp = doJSON(t, r, http.MethodGet, "/subjects/users-value/versions", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandleTestCompatibility(t *testing.T) {
	r := newTestRouter(t)
	registerSchema(t, r, "users-value", userV1)

	resp := doJSON(t, r, http.MethodPost, "/compatibility/subjects/users-value/versions/latest",
		SchemaRequest{Schema: userV2})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body CompatibilityResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.True(t, body.IsCompatible)
	require.Empty(t, body.Messages)

	resp = doJSON(t, r, http.MethodPost, "/compatibility/subjects/users-value/versions/latest",
		SchemaRequest{Schema: userBreaking})
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.False(t, body.IsCompatible)
	require.NotEmpty(t, body.Messages)
}

func TestConfigEndpoints(t *testing.T) {
	r := newTestRouter(t)

	resp := doJSON(t, r, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var cfg ConfigResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	require.Equal(t, "BACKWARD", cfg.CompatibilityLevel)

	resp = doJSON(t, r, http.MethodPut, "/config", ConfigRequest{Compatibility: "FULL"})
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	require.Equal(t, "FULL", cfg.CompatibilityLevel)

	resp = doJSON(t, r, http.MethodPut, "/config", ConfigRequest{Compatibility: "SIDEWAYS"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	var errBody map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errBody))
	require.Equal(t, "invalid_compatibility_mode", errBody["error"])

	// Subject override: inherit, set, clear.
	resp = doJSON(t, r, http.MethodGet, "/config/users-value", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	require.Equal(t, "FULL", cfg.CompatibilityLevel)

	resp = doJSON(t, r, http.MethodPut, "/config/users-value", ConfigRequest{Compatibility: "NONE"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/config/users-value", nil)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	require.Equal(t, "NONE", cfg.CompatibilityLevel)

	resp = doJSON(t, r, http.MethodDelete, "/config/users-value", nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/config/users-value", nil)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	require.Equal(t, "FULL", cfg.CompatibilityLevel)
}

func TestHandleRegister_Protobuf(t *testing.T) {
	r := newTestRouter(t)

	proto := `syntax = "proto3"; message User { string name = 1; }`
	resp := doJSON(t, r, http.MethodPost, "/subjects/users-value/versions",
		SchemaRequest{Schema: proto, SchemaType: "PROTOBUF"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body RegisterResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

	idResp := doJSON(t, r, http.MethodGet, fmt.Sprintf("/schemas/ids/%d", body.ID), nil)
	require.Equal(t, http.StatusOK, idResp.Code)

	var byID map[string]interface{}
	require.NoError(t, json.Unmarshal(idResp.Body.Bytes(), &byID))
	require.Equal(t, "PROTOBUF", byID["schemaType"])
}
