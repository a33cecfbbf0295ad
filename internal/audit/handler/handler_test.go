package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"popai/internal/audit"
	"popai/internal/audit/handler/mocks"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/audit-mocks.go -package=mocks Service
type AuditHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuditHandlerSuite))
}

func (s *AuditHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.RegisterPublic(s.router)
}

func (s *AuditHandlerSuite) get(path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func (s *AuditHandlerSuite) TestList() {
	s.Run("passes paging through", func() {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.service.EXPECT().List(gomock.Any(), 10, 5).Return(&audit.Page{
			Entries: []audit.Entry{{Sequence: 11, ID: "01JAAAAAAAAAAAAAAAAAAAAAAA", Hash: "ab", RecordedAt: at}},
			Offset:  10,
			Total:   11,
		}, nil)

		rr := s.get("/audit/entries?offset=10&limit=5")

		page := testutil.DecodeJSON[audit.Page](s.T(), rr, http.StatusOK)
		s.Equal(11, page.Total)
		s.Require().Len(page.Entries, 1)
		s.Equal("ab", page.Entries[0].Hash)
	})

	s.Run("defaults when absent", func() {
		s.service.EXPECT().List(gomock.Any(), 0, 0).Return(&audit.Page{Entries: []audit.Entry{}}, nil)
		rr := s.get("/audit/entries")
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"entries":[],"offset":0,"total":0}`, rr.Body.String())
	})

	s.Run("rejects malformed paging", func() {
		for _, q := range []string{"offset=-1", "offset=abc", "limit=1.5"} {
			rr := s.get("/audit/entries?" + q)
			testutil.AssertError(s.T(), rr, http.StatusBadRequest, "bad_request")
		}
	})

	s.Run("store failure", func() {
		s.service.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("conn reset"), dErrors.CodeInternal, "failed to read audit log"))
		rr := s.get("/audit/entries")
		env := testutil.AssertError(s.T(), rr, http.StatusInternalServerError, "internal_error")
		s.Empty(env.Description)
	})
}
