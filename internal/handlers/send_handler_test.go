package handlers

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
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/services/events"
	"github.com/ternarybob/nuntio/internal/services/sender"
	"github.com/ternarybob/nuntio/internal/services/uploads"
)

type sendFixture struct {
	handler  *SendHandler
	runner   *sender.Runner
	registry *events.Registry
}

func newSendFixture(t *testing.T) *sendFixture {
	t.Helper()

	logger := common.GetLogger()
	registry := events.NewRegistry(logger)

	staging, err := uploads.NewService(common.UploadsConfig{Dir: t.TempDir()}, logger)
	require.NoError(t, err)

	runner := sender.NewRunner(registry, &sender.ScriptedDriver{}, staging,
		common.SenderConfig{DefaultCountryCode: "+65", SendRateEvery: "1ms"}, logger)

	return &sendFixture{
		handler:  NewSendHandler(runner, staging, common.UploadsConfig{Dir: staging.Dir(), MaxUploadMB: 10}),
		runner:   runner,
		registry: registry,
	}
}

func namelistBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, content := range files {
		part, err := w.CreateFormFile(name, name+".bin")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestSubmitHandler_MissingFiles(t *testing.T) {
	fx := newSendFixture(t)

	tests := []struct {
		name  string
		files map[string][]byte
	}{
		{name: "no parts", files: map[string][]byte{}},
		{name: "namelist only", files: map[string][]byte{
			"namelist": namelistBytes(t, [][]interface{}{{"Mobile Number"}, {"91234567"}}),
		}},
		{name: "message only", files: map[string][]byte{"message": []byte("Hi")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.files, nil)
			req := httptest.NewRequest("POST", "/api/send", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			fx.handler.SubmitHandler(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "namelist and message are required")
		})
	}
}

func TestSubmitHandler_RejectsNonPOST(t *testing.T) {
	fx := newSendFixture(t)

	req := httptest.NewRequest("GET", "/api/send", nil)
	rec := httptest.NewRecorder()
	fx.handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitHandler_AcceptsJobAndReturnsID(t *testing.T) {
	fx := newSendFixture(t)

	body, contentType := multipartBody(t, map[string][]byte{
		"namelist": namelistBytes(t, [][]interface{}{
			{"Mobile Number", "Name"},
			{"91234567", "Alice"},
		}),
		"message": []byte("Hi {Name}"),
	}, nil)

	req := httptest.NewRequest("POST", "/api/send", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	fx.handler.SubmitHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]
	require.True(t, common.IsJobID(jobID), "response must carry a well-formed job id, got %q", jobID)

	// The job runs in the background after the response is written.
	task, ok := fx.runner.Task(jobID)
	require.True(t, ok)
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}

	var sawCompleted bool
	for _, line := range fx.registry.Snapshot(jobID) {
		if line.Payload == "Process COMPLETED." {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}

func TestSubmitHandler_MessageAsFormValue(t *testing.T) {
	fx := newSendFixture(t)

	body, contentType := multipartBody(t, map[string][]byte{
		"namelist": namelistBytes(t, [][]interface{}{{"Mobile Number"}, {"91234567"}}),
	}, map[string]string{"message": "plain text template"})

	req := httptest.NewRequest("POST", "/api/send", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	fx.handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitHandler_InvalidSpreadsheet(t *testing.T) {
	fx := newSendFixture(t)

	body, contentType := multipartBody(t, map[string][]byte{
		"namelist": []byte("this is not a workbook"),
		"message":  []byte("Hi"),
	}, nil)

	req := httptest.NewRequest("POST", "/api/send", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	fx.handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
