package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	accountrepo "github.com/smallbiznis/recouply/internal/account/repository"
	"github.com/smallbiznis/recouply/internal/accountcontext"
	"github.com/smallbiznis/recouply/internal/batch"
	"github.com/smallbiznis/recouply/internal/engine"
	outreachdomain "github.com/smallbiznis/recouply/internal/outreach/domain"
	recondomain "github.com/smallbiznis/recouply/internal/reconciliation/domain"
	"github.com/smallbiznis/recouply/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReconciliation struct {
	mock.Mock
}

func (f *fakeReconciliation) Ingest(ctx context.Context, req recondomain.UploadRequest) (recondomain.UploadResult, error) {
	args := f.Called(ctx, req)
	return args.Get(0).(recondomain.UploadResult), args.Error(1)
}

func (f *fakeReconciliation) RecordPayment(ctx context.Context, req recondomain.FeedPaymentRequest) (recondomain.UploadResult, error) {
	args := f.Called(ctx, req)
	return args.Get(0).(recondomain.UploadResult), args.Error(1)
}

type fakeOutreach struct {
	mock.Mock
	outreachdomain.Service
}

func (f *fakeOutreach) Approve(ctx context.Context, id string) (outreachdomain.Draft, error) {
	args := f.Called(ctx, id)
	return args.Get(0).(outreachdomain.Draft), args.Error(1)
}

type fakeRunner struct {
	summary engine.Summary
	err     error
}

func (f *fakeRunner) RunOnce(context.Context) (engine.Summary, error) {
	return f.summary, f.err
}

type testServer struct {
	srv       *Server
	accountID string
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storetest.Open(t)
	node := storetest.Node(t)
	accountID := storetest.SeedAccount(t, db, node, false)

	srv := &Server{
		engine:      gin.New(),
		db:          db,
		log:         zap.NewNop(),
		accountRepo: accountrepo.Provide(),
	}
	srv.engine.Use(ErrorHandlingMiddleware())
	return testServer{srv: srv, accountID: accountID.String()}
}

func (ts testServer) do(method, path, account, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set(HeaderAccount, account)
	}
	resp := httptest.NewRecorder()
	ts.srv.engine.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestAccountRequired(t *testing.T) {
	ts := newTestServer(t)
	var seen string
	ts.srv.engine.GET("/scoped", ts.srv.AccountRequired(), func(c *gin.Context) {
		id, _ := accountcontext.AccountIDFromContext(c.Request.Context())
		seen = id.String()
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/scoped", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/scoped", "acme", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/scoped", "12345", "").Code)

	resp := ts.do(http.MethodGet, "/scoped", ts.accountID, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, ts.accountID, seen)
}

func TestUploadStringifiesCells(t *testing.T) {
	ts := newTestServer(t)
	recon := &fakeReconciliation{}
	ts.srv.reconciliation = recon
	ts.srv.engine.POST("/api/uploads", ts.srv.AccountRequired(), ts.srv.Upload)

	recon.On("Ingest", mock.Anything, mock.MatchedBy(func(req recondomain.UploadRequest) bool {
		return len(req.Rows) == 1 &&
			req.Rows[0]["Amount"] == "125.5" &&
			req.Rows[0]["Invoice"] == "INV-1" &&
			req.FieldMapping["Amount"] == "payment_amount" &&
			req.FileType == "payments"
	})).Return(recondomain.UploadResult{Processed: 1, Matched: 1, ErrorDetails: []string{}}, nil)

	resp := ts.do(http.MethodPost, "/api/uploads", ts.accountID,
		`{"fileType":"payments","fieldMapping":{"Amount":"payment_amount","Invoice":"invoice_number"},"rows":[{"Amount":125.5,"Invoice":"INV-1"}]}`)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var result recondomain.UploadResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Matched)
	recon.AssertExpectations(t)
}

func TestUploadValidationErrorIs400(t *testing.T) {
	ts := newTestServer(t)
	recon := &fakeReconciliation{}
	ts.srv.reconciliation = recon
	ts.srv.engine.POST("/api/uploads", ts.srv.AccountRequired(), ts.srv.Upload)

	recon.On("Ingest", mock.Anything, mock.Anything).
		Return(recondomain.UploadResult{}, batch.Validationf("unsupported fileType %q", "ledger"))

	resp := ts.do(http.MethodPost, "/api/uploads", ts.accountID, `{"fileType":"ledger","rows":[{"a":"b"}]}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Equal(t, `unsupported fileType "ledger"`, payload.Message)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/uploads", ts.accountID, `{"rows":`).Code)
}

func TestRunEngine(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.engine.POST("/api/engine/run", ts.srv.RunEngine)

	ts.srv.runner = &fakeRunner{summary: engine.Summary{RunID: "1", Cancelled: 2, Generated: 3, Errors: []string{}}}
	resp := ts.do(http.MethodPost, "/api/engine/run", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var summary engine.Summary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &summary))
	assert.Equal(t, int64(2), summary.Cancelled)
	assert.Equal(t, 3, summary.Generated)

	ts.srv.runner = &fakeRunner{err: errors.New("cancel_stale_drafts: connection refused")}
	resp = ts.do(http.MethodPost, "/api/engine/run", "", "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "internal_error", decodeError(t, resp).Type)
}

func TestApproveDraftMapsDomainErrors(t *testing.T) {
	ts := newTestServer(t)
	outreach := &fakeOutreach{}
	ts.srv.outreachSvc = outreach
	ts.srv.engine.POST("/api/drafts/:id/approve", ts.srv.AccountRequired(), ts.srv.ApproveDraft)

	outreach.On("Approve", mock.Anything, "1").Return(outreachdomain.Draft{}, outreachdomain.ErrInvalidTransition)
	outreach.On("Approve", mock.Anything, "2").Return(outreachdomain.Draft{}, outreachdomain.ErrNotFound)
	outreach.On("Approve", mock.Anything, "x").Return(outreachdomain.Draft{}, outreachdomain.ErrInvalidID)
	outreach.On("Approve", mock.Anything, "3").Return(outreachdomain.Draft{Status: outreachdomain.DraftStatusApproved}, nil)

	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/drafts/1/approve", ts.accountID, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/api/drafts/2/approve", ts.accountID, "").Code)

	resp := ts.do(http.MethodPost, "/api/drafts/x/approve", ts.accountID, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "id", decodeError(t, resp).Errors[0].Field)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/drafts/3/approve", ts.accountID, "").Code)
}

func TestOutreachPauseRequiresFlag(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.engine.POST("/api/debtors/:id/outreach", ts.srv.AccountRequired(), ts.srv.SetDebtorOutreach)

	resp := ts.do(http.MethodPost, "/api/debtors/1/outreach", ts.accountID, `{}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "paused", decodeError(t, resp).Errors[0].Field)
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(batch.Validationf("bad row"))
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "validation_error", code)

	errType, code = classifyErrorForLog(outreachdomain.ErrNotFound)
	assert.Equal(t, "not_found", errType)
	assert.Equal(t, "draft_not_found", code)
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrTooManyRequests, http.StatusTooManyRequests},
		{ErrUploadInProgress, http.StatusConflict},
		{batch.Upstreamf("smtp"), http.StatusServiceUnavailable},
		{recondomain.ErrEmptyUpload, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.want, status, tc.err.Error())
	}
}
