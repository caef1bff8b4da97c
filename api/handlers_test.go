package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONSetsSuccessOnOK(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]string{"foo": "bar"})

	var got envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Success)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteJSONSetsFailureOnClientError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusNotFound, nil)

	var got envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.False(t, got.Success)
}

func TestWriteErrorCarriesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, "boom")

	var got envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.False(t, got.Success)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteValidationErrorIsBadRequestWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeValidationError(rec, map[string]string{"threshold": "must be > 0"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var got envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.False(t, got.Success)
	assert.Equal(t, "validation failed", got.Error)
}

func TestDecodeBodyRejectsMalformedJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/positions", bytes.NewBufferString(`{not json`))

	var dst openPositionRequest
	ok := decodeBody(rec, req, 1<<20, &dst)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeBodyRejectsOversizedPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	body := bytes.Repeat([]byte("a"), 100)
	req := httptest.NewRequest(http.MethodPost, "/positions", bytes.NewBuffer(append([]byte(`{"mint":"`), append(body, []byte(`"}`)...)...)))

	var dst openPositionRequest
	ok := decodeBody(rec, req, 16, &dst)

	assert.False(t, ok)
}

func TestDecodeBodyAcceptsValidPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/positions", bytes.NewBufferString(`{"mint":"abc","baseAmount":1000,"maxSlippageBps":50}`))

	var dst openPositionRequest
	ok := decodeBody(rec, req, 1<<20, &dst)

	require.True(t, ok)
	assert.Equal(t, "abc", dst.Mint)
	assert.Equal(t, uint64(1000), dst.BaseAmount)
	assert.Equal(t, 50, dst.MaxSlippageBps)
}
