package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/domain/domaintest"
)

var testNow = time.Date(2025, time.October, 27, 20, 0, 0, 0, time.UTC)

type fixture struct {
	store    *domaintest.Store
	provider *domaintest.Provider
	mux      *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := domaintest.NewStore()
	provider := &domaintest.Provider{}
	service := domain.NewService(domain.Dependencies{
		Credentials: store,
		Activities:  store,
		Feedback:    store,
		Plans:       store,
		Dialogues:   store,
		AuthStates:  store,
		Provider:    provider,
	}, domain.DefaultOptions(), domain.WithClock(func() time.Time { return testNow }))

	mux := http.NewServeMux()
	NewHandler(service, nil).RegisterRoutes(mux)
	return &fixture{store: store, provider: provider, mux: mux}
}

func (f *fixture) do(t *testing.T, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if userID != "" {
		claims := &auth.Claims{Subject: userID, ExpiresAt: testNow.Add(time.Hour)}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	decodeBody(t, rr, &body)
	code, _ := body["type"].(string)
	return code
}

func (f *fixture) linkProvider(userID string) {
	f.store.PutCredential(domain.Credential{
		UserID:       userID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    testNow.Add(time.Hour).Unix(),
	})
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&domain.ValidationError{Field: "sensation", Reason: "is required"}, http.StatusBadRequest, "validation_failed"},
		{domain.ErrAuthentication, http.StatusUnauthorized, "unauthorized"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{errors.Join(errors.New("insert"), domain.ErrDuplicateFeedback), http.StatusConflict, "conflict"},
		{&domain.ProviderError{Op: "list", Status: 503}, http.StatusInternalServerError, "provider_error"},
		{errors.New("boom"), http.StatusInternalServerError, "server_error"},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestRequestsWithoutIdentityAreRejected(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/sync", "/feedback", "/training/plan", "/dialogue"} {
		rr := f.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestSyncWithoutCredentialReturns401(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/sync", "", "user-1")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthorized", errorType(t, rr))
}

func TestSyncReturnsCount(t *testing.T) {
	f := newFixture(t)
	f.linkProvider("user-1")
	f.provider.Remote = []domain.Activity{
		{ExternalID: "a1", Name: "Morning run", StartTimestamp: testNow.Add(-48 * time.Hour)},
		{ExternalID: "a2", Name: "Easy run", StartTimestamp: testNow.Add(-24 * time.Hour)},
	}

	rr := f.do(t, http.MethodGet, "/sync", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp SyncResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.NotEmpty(t, resp.Message)

	rr = f.do(t, http.MethodGet, "/sync", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &resp)
	assert.Equal(t, 0, resp.Count)
	assert.Len(t, f.store.Activities("user-1"), 2)
}

func TestSyncProviderErrorReturns500WithPayload(t *testing.T) {
	f := newFixture(t)
	f.linkProvider("user-1")
	f.provider.ListErr = &domain.ProviderError{Op: "list activities", Status: http.StatusBadGateway, Body: `{"message":"upstream down"}`}

	rr := f.do(t, http.MethodGet, "/sync", "", "user-1")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]string
	decodeBody(t, rr, &body)
	assert.Equal(t, "provider_error", body["type"])
	assert.Contains(t, body["detail"], "upstream down")
}

func TestProviderAuthorizeAndExchange(t *testing.T) {
	f := newFixture(t)
	f.provider.Grant = domain.TokenGrant{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Add(6 * time.Hour).Unix(), AthleteID: "134815"}

	rr := f.do(t, http.MethodGet, "/provider/authorize", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	var authz AuthorizeResponse
	decodeBody(t, rr, &authz)
	assert.NotEmpty(t, authz.State)
	assert.Contains(t, authz.URL, "state="+authz.State)

	rr = f.do(t, http.MethodPost, "/provider/exchange", `{"code":"abc","state":"`+authz.State+`"}`, "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var exch ExchangeResponse
	decodeBody(t, rr, &exch)
	assert.Equal(t, "134815", exch.AthleteID)

	rr = f.do(t, http.MethodPost, "/provider/exchange", `{"code":"","state":"`+authz.State+`"}`, "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProviderExchangeRejectsForeignState(t *testing.T) {
	f := newFixture(t)
	f.provider.Grant = domain.TokenGrant{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Add(6 * time.Hour).Unix()}

	rr := f.do(t, http.MethodGet, "/provider/authorize", "", "user-2")
	require.Equal(t, http.StatusOK, rr.Code)
	var authz AuthorizeResponse
	decodeBody(t, rr, &authz)

	// A state issued to another user does not link this one.
	rr = f.do(t, http.MethodPost, "/provider/exchange", `{"code":"abc","state":"`+authz.State+`"}`, "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_failed", errorType(t, rr))

	rr = f.do(t, http.MethodPost, "/provider/exchange", `{"code":"abc"}`, "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	stored, err := f.store.GetCredential(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

const validFeedback = `{
	"sessionId": "a1",
	"sessionDate": "2025-10-26",
	"sessionTitle": "Tempo run",
	"adherence": "followed exactly",
	"sensation": 6,
	"pain": {"hasPain": false}
}`

func TestCreateFeedback(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/feedback", validFeedback, "user-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var view FeedbackView
	decodeBody(t, rr, &view)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "a1", view.SessionID)
	assert.Equal(t, 6, view.Sensation)
	assert.True(t, testNow.Equal(view.CreatedAt))

	rr = f.do(t, http.MethodPost, "/feedback", validFeedback, "user-1")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", errorType(t, rr))
	assert.Len(t, f.store.Feedback(), 1)
}

func TestCreateFeedbackRejectsMissingFields(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"sessionId":   `{"sessionDate":"2025-10-26","sensation":5,"pain":{"hasPain":false}}`,
		"sessionDate": `{"sessionId":"a1","sensation":5,"pain":{"hasPain":false}}`,
		"sensation":   `{"sessionId":"a1","sessionDate":"2025-10-26","pain":{"hasPain":false}}`,
		"pain":        `{"sessionId":"a1","sessionDate":"2025-10-26","sensation":5}`,
	}
	for field, body := range cases {
		rr := f.do(t, http.MethodPost, "/feedback", body, "user-1")
		assert.Equal(t, http.StatusBadRequest, rr.Code, field)
		assert.Contains(t, rr.Body.String(), field)
	}

	rr := f.do(t, http.MethodPost, "/feedback", `{"sessionId":"a1","sessionDate":"2025-10-26","sensation":5,"pain":{"hasPain":false},"mood":"great"}`, "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_request", errorType(t, rr))

	rr = f.do(t, http.MethodPost, "/feedback", `{"sessionId":"a1","sessionDate":"2025-10-26","sensation":11,"pain":{"hasPain":false}}`, "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, f.store.Feedback())
}

func TestListFeedbackPaginates(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a1", "a2", "a3"} {
		body := strings.Replace(validFeedback, `"a1"`, `"`+id+`"`, 1)
		rr := f.do(t, http.MethodPost, "/feedback", body, "user-1")
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := f.do(t, http.MethodGet, "/feedback?limit=2", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	var page ListFeedbackResponse
	decodeBody(t, rr, &page)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rr = f.do(t, http.MethodGet, "/feedback?limit=2&cursor="+page.NextCursor, "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	var second ListFeedbackResponse
	decodeBody(t, rr, &second)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	for _, item := range append(page.Items, second.Items...) {
		seen[item.SessionID] = true
	}
	assert.Len(t, seen, 3)

	rr = f.do(t, http.MethodGet, "/feedback?cursor=not-a-cursor", "", "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdaptRequiresPlan(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/training/adapt", `{"sensation":9,"pain":{"hasPain":true,"area":"knee"},"adherence":"not followed"}`, "user-1")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	f.store.PutPlan("user-1", domain.PlannedSession{ID: "s1", Date: testNow.Add(24 * time.Hour), SessionType: "intervals", Title: "6x800m"})
	rr = f.do(t, http.MethodPost, "/training/adapt", `{"sensation":9,"pain":{"hasPain":true,"area":"knee"},"adherence":"not followed"}`, "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp AdaptResponse
	decodeBody(t, rr, &resp)
	assert.True(t, resp.Success)
	require.Len(t, resp.Suggestions, 3)
	assert.Contains(t, resp.Suggestions[1], "knee")

	rr = f.do(t, http.MethodPost, "/training/adapt", `{"pain":{"hasPain":false}}`, "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlanRoundTrip(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/training/plan", "", "user-1")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	body := `{"sessions":[
		{"id":"s1","date":"2025-10-28","sessionType":"easy","title":"Easy 40","plannedDurationMinutes":40},
		{"id":"s2","date":"2025-10-30T07:00:00Z","sessionType":"tempo","title":"Tempo 5k","plannedDurationMinutes":35,"plannedDistanceKm":8.5}
	]}`
	rr = f.do(t, http.MethodPut, "/training/plan", body, "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/training/plan", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	var plan PlanView
	decodeBody(t, rr, &plan)
	require.Len(t, plan.Sessions, 2)
	assert.Equal(t, "s1", plan.Sessions[0].ID)
	require.NotNil(t, plan.Sessions[1].PlannedDistanceKm)
	assert.InDelta(t, 8.5, *plan.Sessions[1].PlannedDistanceKm, 0.001)

	rr = f.do(t, http.MethodPut, "/training/plan", `{"sessions":[{"id":"s1","date":"tomorrow"}]}`, "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDialogueOverHTTP(t *testing.T) {
	f := newFixture(t)
	plannedKm := 10.0
	f.store.PutPlan("user-1", domain.PlannedSession{
		ID: "s1", Date: testNow.Add(-3 * time.Hour), SessionType: "long", Title: "Long run",
		PlannedDurationMinutes: 55, PlannedDistanceKm: &plannedKm,
	})
	_, _ = f.store.UpsertActivities(t.Context(), "user-1", []domain.Activity{{
		ExternalID: "a1", Name: "Sunday long run", StartTimestamp: testNow.Add(-2 * time.Hour),
		MovingTimeSeconds: 3000, DistanceMeters: 10000,
	}})

	rr := f.do(t, http.MethodGet, "/feedback/pending", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var pending PendingMatchResponse
	decodeBody(t, rr, &pending)
	assert.Equal(t, "a1", pending.Activity.ExternalID)
	assert.Equal(t, "s1", pending.Session.ID)

	rr = f.do(t, http.MethodPost, "/dialogue", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view DialogueView
	decodeBody(t, rr, &view)
	assert.Equal(t, domain.StepIntro, view.Step)
	assert.Equal(t, []string{"proceed", "defer"}, view.Prompt.Choices)

	rr = f.do(t, http.MethodPost, "/dialogue/answer", `{"answer":"maybe"}`, "user-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for _, answer := range []string{"proceed", "followed exactly", "5", "no pain"} {
		rr = f.do(t, http.MethodPost, "/dialogue/answer", `{"answer":"`+answer+`"}`, "user-1")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	var resp AnswerResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, domain.StepComment, resp.Dialogue.Step)

	rr = f.do(t, http.MethodPost, "/dialogue/answer", `{"answer":""}`, "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp = AnswerResponse{}
	decodeBody(t, rr, &resp)
	assert.True(t, resp.Dialogue.Done)
	require.NotNil(t, resp.Feedback)
	assert.Equal(t, 50, resp.Feedback.PlannedVsRealized.Realized.DurationMin)
	require.NotNil(t, resp.Feedback.PlannedVsRealized.Realized.DistanceKm)
	assert.InDelta(t, 10.0, *resp.Feedback.PlannedVsRealized.Realized.DistanceKm, 0.001)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, int64(4000), resp.CloseAfterMs)

	rr = f.do(t, http.MethodGet, "/dialogue", "", "user-1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDialogueSaveFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.PutPlan("user-1", domain.PlannedSession{ID: "s1", Date: testNow.Add(-3 * time.Hour), Title: "Easy"})
	_, _ = f.store.UpsertActivities(t.Context(), "user-1", []domain.Activity{{ExternalID: "a1", StartTimestamp: testNow.Add(-2 * time.Hour)}})

	rr := f.do(t, http.MethodPost, "/dialogue", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	for _, answer := range []string{"1", "1", "7", "1"} {
		rr = f.do(t, http.MethodPost, "/dialogue/answer", `{"answer":"`+answer+`"}`, "user-1")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	f.store.InsertFeedbackErr = errors.New("connection reset")
	rr = f.do(t, http.MethodPost, "/dialogue/answer", `{"answer":"felt fine"}`, "user-1")
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body DialogueErrorResponse
	decodeBody(t, rr, &body)
	require.NotNil(t, body.Dialogue)
	assert.Equal(t, domain.StepComment, body.Dialogue.Step)
	last := body.Dialogue.Transcript[len(body.Dialogue.Transcript)-1]
	assert.Contains(t, last.Text, "could not be saved")

	f.store.InsertFeedbackErr = nil
	rr = f.do(t, http.MethodPost, "/dialogue/answer", `{"answer":"felt fine"}`, "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, f.store.Feedback(), 1)
}

func TestDialogueAbandon(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodDelete, "/dialogue", "", "user-1")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodPost, "/dialogue", "", "user-1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnsupportedMethods(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"/sync":            http.MethodDelete,
		"/feedback":        http.MethodPut,
		"/training/adapt":  http.MethodGet,
		"/training/plan":   http.MethodPost,
		"/dialogue/answer": http.MethodGet,
	}
	for path, method := range cases {
		rr := f.do(t, method, path, "", "user-1")
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, path)
	}
}
