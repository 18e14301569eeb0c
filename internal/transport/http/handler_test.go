package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"settlement-engine/internal/account"
	"settlement-engine/internal/connector"
	"settlement-engine/internal/correlation"
	"settlement-engine/internal/handshake"
	"settlement-engine/internal/platform/metrics"
	"settlement-engine/internal/plugin"
	"settlement-engine/internal/plugin/mocks"
	"settlement-engine/internal/settlement"
	"settlement-engine/internal/storage"
	"settlement-engine/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctx       context.Context
	store     *storage.InMemory
	accounts  *account.Registry
	tags      *correlation.Registry
	rail      *mocks.MockRail
	connector *testutil.FakeServer
	service   *settlement.Service
	registry  *prometheus.Registry
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewInMemory()
	keys := storage.Keyspace{Prefix: "test"}
	s.accounts = account.NewRegistry(s.store, keys)
	s.tags = correlation.New(s.store, keys, correlation.WithRandom(func() uint32 { return 31337 }))
	s.rail = mocks.NewMockRail(gomock.NewController(s.T()))
	s.connector = testutil.NewFakeServer(s.T())
	s.registry = prometheus.NewRegistry()

	client := connector.New(s.connector.URL, time.Second)
	s.service = settlement.New(
		settlement.Config{AssetScale: 1, Timeout: time.Second},
		s.rail,
		s.accounts,
		handshake.NewInitiator(client),
		client,
		settlement.WithTagResolver(s.tags),
	)
}

func (s *HandlerSuite) router(responder MessageResponder, opts ...Option) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	h := New(s.accounts, responder, s.service, logger, opts...)
	return NewRouter(logger, metrics.New(s.registry), s.registry, s.store, h)
}

func (s *HandlerSuite) defaultRouter() http.Handler {
	return s.router(handshake.NewResponder("test123"), WithWebhooks(s.service.HandleIncoming))
}

func (s *HandlerSuite) createAccount(id string) {
	_, _, err := s.accounts.Create(s.ctx, id)
	s.Require().NoError(err)
}

func (s *HandlerSuite) TestCreateAccountTwiceReturnsSameRecord() {
	r := s.defaultRouter()

	first := testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts", map[string]string{"id": "testId"}))
	second := testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts", map[string]string{"id": "testId"}))

	testutil.AssertStatus(s.T(), first, http.StatusCreated)
	testutil.AssertStatus(s.T(), second, http.StatusCreated)
	s.JSONEq(`{"id":"testId"}`, first.Body.String())
	s.Equal(first.Body.String(), second.Body.String())
	s.Equal(1, s.store.Len())
}

func (s *HandlerSuite) TestCreateAccountWithoutBodyGeneratesID() {
	rr := testutil.DoRequest(s.defaultRouter(), testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts", nil))

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	got := testutil.UnmarshalResponse[account.Account](s.T(), rr)
	s.NotEmpty(got.ID)
}

func (s *HandlerSuite) TestCreateAccountRejectsBadBody() {
	r := s.defaultRouter()

	rr := testutil.DoRequest(r, testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts", []byte("{")))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "bad_request")

	rr = testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts", map[string]string{"id": "a/b"}))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "validation_error")
}

func (s *HandlerSuite) TestGetAndDeleteAccount() {
	s.createAccount("alice")
	r := s.defaultRouter()

	rr := testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodGet, "/accounts/alice", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.JSONEq(`{"id":"alice"}`, rr.Body.String())

	rr = testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodDelete, "/accounts/alice", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodGet, "/accounts/alice", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	testutil.AssertErrorCode(s.T(), rr, "not_found")

	rr = testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodDelete, "/accounts/alice", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}

func (s *HandlerSuite) TestMessagePaymentDetails() {
	s.createAccount("testId")

	rr := testutil.DoRequest(s.defaultRouter(), testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/testId/messages", []byte(`{"type":"paymentDetails"}`)))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal("application/octet-stream", rr.Header().Get("Content-Type"))
	s.JSONEq(`{"address":"test123"}`, rr.Body.String())
}

func (s *HandlerSuite) TestMessagePaymentDetailsWithTag() {
	s.createAccount("testId")
	r := s.router(handshake.NewResponder("test123", handshake.WithTags(s.tags)))

	rr := testutil.DoRequest(r, testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/testId/messages", []byte(`{"type":"paymentDetails"}`)))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.JSONEq(`{"address":"test123","tag":31337}`, rr.Body.String())
}

func (s *HandlerSuite) TestMessageErrors() {
	s.createAccount("testId")
	r := s.defaultRouter()

	rr := testutil.DoRequest(r, testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/testId/messages", []byte(`{"type":"refund"}`)))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	s.Contains(rr.Body.String(), "unsupported message type")

	rr = testutil.DoRequest(r, testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/testId/messages", []byte(`not json`)))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)

	rr = testutil.DoRequest(r, testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/ghost/messages", []byte(`{"type":"paymentDetails"}`)))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
}

func (s *HandlerSuite) TestSettlementReturnsReceiptAndMessagesPeer() {
	s.createAccount("testId")
	s.connector.Reply("/accounts/testId/messages", http.StatusOK, []byte(`{"address":"peer"}`))
	s.rail.EXPECT().SettleOutgoingTransaction(gomock.Any(), plugin.Destination{Address: "peer"}, big.NewInt(5)).Return(nil)

	rr := testutil.DoRequest(s.defaultRouter(), testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts/testId/settlement", map[string]any{
		"amount": "5000000000",
		"scale":  10,
	}))
	s.service.Wait()

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	s.JSONEq(`{"scale":1,"amount":"5"}`, rr.Body.String())
	s.Len(s.connector.Requests("/accounts/testId/messages"), 1)
}

func (s *HandlerSuite) TestSettlementErrors() {
	s.createAccount("testId")
	r := s.defaultRouter()

	for name, tc := range map[string]struct {
		path   string
		body   any
		status int
	}{
		"unknown account": {"/accounts/ghost/settlement", map[string]any{"amount": "1", "scale": 0}, http.StatusNotFound},
		"missing scale":   {"/accounts/testId/settlement", map[string]any{"amount": "1"}, http.StatusBadRequest},
		"missing amount":  {"/accounts/testId/settlement", map[string]any{"scale": 2}, http.StatusBadRequest},
		"numeric amount":  {"/accounts/testId/settlement", map[string]any{"amount": 1, "scale": 2}, http.StatusBadRequest},
		"negative amount": {"/accounts/testId/settlement", map[string]any{"amount": "-1", "scale": 2}, http.StatusBadRequest},
		"scale too large": {"/accounts/testId/settlement", map[string]any{"amount": "1", "scale": 300}, http.StatusBadRequest},
	} {
		s.Run(name, func() {
			rr := testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodPost, tc.path, tc.body))
			testutil.AssertStatus(s.T(), rr, tc.status)
		})
	}
	s.service.Wait()
	s.Empty(s.connector.Requests("/accounts/testId/messages"))
}

func (s *HandlerSuite) TestWebhookCreditsAccountByTag() {
	s.createAccount("alice")
	tag, err := s.tags.TagFor(s.ctx, "alice")
	s.Require().NoError(err)
	s.connector.Reply("/accounts/alice/settlement", http.StatusOK, nil)

	s.rail.EXPECT().
		HandleIncomingTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e plugin.Event) (plugin.TxResult, error) {
			s.Equal("engine-client", e.AccountRef)
			s.Equal(`{"charge":1}`, string(e.Body))
			s.Equal("sig", e.Header.Get("X-Signature"))
			return plugin.TxResult{Result: true, Value: plugin.TxValue{ID: storage.FormatTag(tag), Pay: "5"}}, nil
		})

	req := testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/engine-client/webhooks", []byte(`{"charge":1}`))
	req.Header.Set("X-Signature", "sig")
	rr := testutil.DoRequest(s.defaultRouter(), req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	reqs := s.connector.Requests("/accounts/alice/settlement")
	s.Require().Len(reqs, 1)
	s.JSONEq(`{"amount":"50","scale":1}`, string(reqs[0].Body))
}

func (s *HandlerSuite) TestWebhookFailuresAnswer404() {
	r := s.defaultRouter()

	s.rail.EXPECT().HandleIncomingTransaction(gomock.Any(), gomock.Any()).Return(plugin.TxResult{Result: false}, nil)
	rr := testutil.DoRequest(r, testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/x/webhooks", []byte(`{}`)))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)

	s.rail.EXPECT().HandleIncomingTransaction(gomock.Any(), gomock.Any()).Return(plugin.TxResult{Result: true, Value: plugin.TxValue{ID: "9", Pay: "1"}}, nil)
	rr = testutil.DoRequest(r, testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/x/webhooks", []byte(`{}`)))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
}

func (s *HandlerSuite) TestWebhookRouteAbsentWithoutHandler() {
	r := s.router(handshake.NewResponder("test123"))

	rr := testutil.DoRequest(r, testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/x/webhooks", []byte(`{}`)))
	s.Contains([]int{http.StatusNotFound, http.StatusMethodNotAllowed}, rr.Code)
	s.NotContains(rr.Body.String(), "transaction not accepted")
}

func (s *HandlerSuite) TestHealthAndMetrics() {
	r := s.defaultRouter()

	rr := testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodGet, "/health", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	_ = testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodGet, "/accounts/nobody", nil))
	rr = testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodGet, "/metrics", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.True(strings.Contains(rr.Body.String(), "settlement_engine_http_request_duration_seconds"))
}

type downStore struct{ *storage.InMemory }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func (s *HandlerSuite) TestHealthReportsUnavailableStore() {
	logger := slog.New(slog.DiscardHandler)
	r := NewRouter(logger, nil, nil, downStore{storage.NewInMemory()})

	rr := testutil.DoRequest(r, testutil.NewJSONRequest(s.T(), http.MethodGet, "/health", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
}

func (s *HandlerSuite) TestRequestIDIsEchoed() {
	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rr := testutil.DoRequest(s.defaultRouter(), req)
	s.Equal("req-1", rr.Header().Get("X-Request-ID"))
}

var errStoreDown = errors.New("store unreachable")

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) { return "", errStoreDown }
func (brokenStore) Set(context.Context, string, string) error { return errStoreDown }
func (brokenStore) Delete(context.Context, string) error { return errStoreDown }
func (brokenStore) Ping(context.Context) error { return errStoreDown }

// brokenRouter wires the full tag-mode surface over a store that fails every call.
func (s *HandlerSuite) brokenRouter() http.Handler {
	store := brokenStore{}
	keys := storage.Keyspace{Prefix: "test"}
	accounts := account.NewRegistry(store, keys)
	tags := correlation.New(store, keys)
	client := connector.New(s.connector.URL, time.Second)
	service := settlement.New(
		settlement.Config{AssetScale: 1, Timeout: time.Second},
		s.rail,
		accounts,
		handshake.NewInitiator(client),
		client,
		settlement.WithTagResolver(tags),
	)
	logger := slog.New(slog.DiscardHandler)
	h := New(accounts, handshake.NewResponder("test123", handshake.WithTags(tags)), service, logger,
		WithWebhooks(service.HandleIncoming),
	)
	return NewRouter(logger, nil, nil, store, h)
}

func (s *HandlerSuite) TestStoreFailureAnswers500() {
	r := s.brokenRouter()
	s.rail.EXPECT().
		HandleIncomingTransaction(gomock.Any(), gomock.Any()).
		Return(plugin.TxResult{Result: true, Value: plugin.TxValue{ID: "31337", Pay: "5"}}, nil)

	for name, req := range map[string]*http.Request{
		"create account": testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts", map[string]string{"id": "alice"}),
		"get account":    testutil.NewJSONRequest(s.T(), http.MethodGet, "/accounts/alice", nil),
		"settlement": testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts/alice/settlement", map[string]any{
			"amount": "5",
			"scale":  1,
		}),
		"message": testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/alice/messages", []byte(`{"type":"paymentDetails"}`)),
		"webhook": testutil.NewRawRequest(s.T(), http.MethodPost, "/accounts/engine-client/webhooks", []byte(`{}`)),
	} {
		s.Run(name, func() {
			rr := testutil.DoRequest(r, req)
			testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
			s.JSONEq(`{"error":"internal_error"}`, rr.Body.String())
		})
	}
	s.Empty(s.connector.Requests("/accounts/alice/messages"))
	s.Empty(s.connector.Requests("/accounts/alice/settlement"))
}
