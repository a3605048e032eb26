package loans

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(l *memLedger, exposeDetail bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), newTestService(l), exposeDetail)
	return r
}

func uploadBody(t *testing.T, fields map[string]string, file io.Reader) (*bytes.Buffer, string) {
	t.Helper()
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile(uploadField, "loans.xlsx")
		require.NoError(t, err)
		_, err = io.Copy(fw, file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &b, mw.FormDataContentType()
}

var validFields = map[string]string{
	"deduction_type": "Loan",
	"deduction_code": "SAL",
	"prepared_by":    "U100",
	"approved_by":    "U200",
}

func TestHandler_Upload_JSON(t *testing.T) {
	l := seededLedger()
	l.addEmployee("E2", "DIV-A")
	l.addLoan(outstanding("E2", "SAL", "3000", "1000"))
	r := newTestRouter(l, false)

	body, ct := uploadBody(t, validFields, workbook(t,
		[]any{"Employee No", "Employee Name", "Amount"},
		[]any{"E1", "Doe, John", 1000},
		[]any{"E2", "Roe, Jane", 2000},
	))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Qualified, 1)
	assert.Equal(t, "LN-JAD-000001", got.Qualified[0].TransactionNumber)
	assert.Equal(t, []string{"E2,Roe, Jane,2000,Employee has existing loan\n"}, got.Unqualified)
	assert.Equal(t, []string{}, got.Failed)
}

func TestHandler_Upload_CSV(t *testing.T) {
	r := newTestRouter(seededLedger(), false)

	body, ct := uploadBody(t, validFields, workbook(t,
		[]any{"E9", "Nobody", 75},
	))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads?format=csv", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), ReportFilename)
	assert.Equal(t, "batch-1", w.Header().Get("X-Batch-ID"))
	assert.True(t, strings.HasSuffix(w.Body.String(), "E9,Nobody,75,Employee not exists\n"))
}

func TestHandler_Upload_Errors(t *testing.T) {
	noCode := map[string]string{"deduction_type": "Loan", "prepared_by": "U1", "approved_by": "U2"}

	cases := []struct {
		name   string
		fields map[string]string
		file   io.Reader
		status int
		code   Code
	}{
		{"missing description", noCode, workbookGarbage(), http.StatusBadRequest, CodeInvalidArgument},
		{"missing file", validFields, nil, http.StatusBadRequest, CodeInvalidArgument},
		{"unreadable file", validFields, workbookGarbage(), http.StatusUnprocessableEntity, CodeMalformedFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := uploadBody(t, tc.fields, tc.file)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			newTestRouter(seededLedger(), false).ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			var e errorDTO
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.Equal(t, tc.code, e.Error.Code)
		})
	}
}

func TestHandler_Upload_TooLarge(t *testing.T) {
	l := seededLedger()
	svc := newTestService(l)
	svc.maxUploadBytes = 64
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, svc, false)

	body, ct := uploadBody(t, validFields, bytes.NewReader(bytes.Repeat([]byte("x"), 4096)))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandler_ListAndGetLoans(t *testing.T) {
	l := seededLedger()
	l.addLoan(Loan{TransactionNumber: "LN-JAD-000001", EmployeeID: "E1", DeductionCode: "SAL", Status: true})
	r := newTestRouter(l, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans?page=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list ListLoansResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.EqualValues(t, 1, list.Total)
	assert.Equal(t, 1, list.TotalPages)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans/LN-JAD-000001", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans/LN-JAD-000404", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans/nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Deductions(t *testing.T) {
	r := newTestRouter(seededLedger(), false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deductions/descriptions", strings.NewReader(`{"deduction_type":"Loan"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var opts []DeductionOption
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opts))
	assert.Equal(t, "EMG", opts[0].Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deductions?type=Other", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), msgSelectDescriptionFirst)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users/active", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name_of_user":"Admin, Ana","user_empno":"U100"}]`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/options?deduction_type=Loan", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var uo UploadOptionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uo))
	assert.Len(t, uo.DeductionDescriptions, 2)
}

func TestHandler_InternalErrorDetail(t *testing.T) {
	err := errPersistence("list loans", errDiskFull)

	hidden := (&Handler{}).errorFromErr(err)
	assert.Equal(t, CodeInternal, hidden.Error.Code)
	assert.Equal(t, "Internal Server Error", hidden.Error.Message)

	shown := (&Handler{exposeDetail: true}).errorFromErr(err)
	assert.Contains(t, shown.Error.Message, "disk full")
}

func TestHandler_ListLoans_PageOutOfRange(t *testing.T) {
	r := newTestRouter(seededLedger(), false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans?page=9223372036854775807", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var e errorDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, CodeInvalidArgument, e.Error.Code)
}
