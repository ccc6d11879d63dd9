package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/okian/usagedash/internal/adapters/http/api"
	service "github.com/okian/usagedash/internal/app"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDependencies struct {
	mu          sync.Mutex
	last        service.UsageQuery
	err         error
	invalidated int
	identity    api.Identity
	hasIdentity bool
}

func (m *mockDependencies) record(ctx context.Context, q service.UsageQuery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = q
	m.identity, m.hasIdentity = api.IdentityFrom(ctx)
}

func (m *mockDependencies) GetUsage(ctx context.Context, q service.UsageQuery) (types.UsageResponse, error) {
	m.record(ctx, q)
	if m.err != nil {
		return types.UsageResponse{}, m.err
	}
	return types.UsageResponse{
		Summary:       types.Summary{TotalCost: 1.5, TotalTraces: 3, TotalRequests: 3, TotalTokens: 300},
		Organizations: []types.OrganizationRow{{OrgID: "acme", Name: "Acme", Requests: 3}},
		ChartData:     []types.ChartPoint{{Count: 3}},
		Granularity:   "day",
		Source:        "telemetry",
		ScalingFactor: 1,
	}, nil
}

func (m *mockDependencies) GetChart(ctx context.Context, q service.UsageQuery) ([]types.ChartPoint, error) {
	m.record(ctx, q)
	return []types.ChartPoint{{Count: 1}, {Count: 2}}, m.err
}

func (m *mockDependencies) GetOrganizations(ctx context.Context, q service.UsageQuery) ([]types.OrganizationRow, error) {
	m.record(ctx, q)
	return []types.OrganizationRow{{OrgID: "acme"}}, m.err
}

func (m *mockDependencies) InvalidateCache(context.Context) {
	m.mu.Lock()
	m.invalidated++
	m.mu.Unlock()
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any { return m.stats }

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	opts = append(opts, api.WithClock(func() time.Time { return now }))
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorBody(w *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Error
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Then health serves metrics", func() {
			w := serve(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are JSON", func() {
			w := serve(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then stats reject other methods", func() {
			w := serve(mux, http.MethodPost, "/stats")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestUsageEndpoints(t *testing.T) {
	Convey("Given the usage endpoints", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When usage is requested without parameters", func() {
			w := serve(mux, http.MethodGet, "/api/usage")

			Convey("Then the all-time window and default source are used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last.Window.AllTime, ShouldBeTrue)
				So(deps.last.Source, ShouldEqual, model.Source(""))
				So(deps.last.OrgFilter, ShouldBeEmpty)
			})

			Convey("Then the body has the dashboard shape", func() {
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body, ShouldContainKey, "summary")
				So(body, ShouldContainKey, "organizations")
				So(body, ShouldContainKey, "chartData")
				summary := body["summary"].(map[string]any)
				So(summary["totalCost"], ShouldEqual, 1.5)
				So(summary["totalTraces"], ShouldEqual, 3.0)
			})

			Convey("Then a request id is assigned", func() {
				_, err := uuid.Parse(w.Header().Get(api.RequestIDHeader))
				So(err, ShouldBeNil)
			})
		})

		Convey("When the caller supplies a request id", func() {
			id := uuid.NewString()
			w := serve(mux, http.MethodGet, "/api/usage", api.RequestIDHeader, id)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, id)
		})

		Convey("When a relative window and organization are requested", func() {
			w := serve(mux, http.MethodGet, "/api/usage?days=7&selectedOrg=acme&source=ledger")

			Convey("Then they are passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last.Window.From.Equal(now.AddDate(0, 0, -7)), ShouldBeTrue)
				So(deps.last.Window.To.Equal(now), ShouldBeTrue)
				So(deps.last.OrgFilter, ShouldEqual, "acme")
				So(deps.last.Source, ShouldEqual, model.SourceLedger)
				So(deps.last.Relative, ShouldEqual, "days=7")
			})
		})

		Convey("When only a start date is requested", func() {
			w := serve(mux, http.MethodGet, "/api/usage?startDate=2025-01-01")

			Convey("Then the window ends now and is keyed by its start", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last.Window.To.Equal(now), ShouldBeTrue)
				So(deps.last.Relative, ShouldEqual, "since=2025-01-01T00:00:00Z")
			})
		})

		Convey("When plain dates are requested", func() {
			w := serve(mux, http.MethodGet, "/api/usage?startDate=2025-01-01&endDate=2025-01-02&orgId=globex")

			Convey("Then the end date includes the whole day", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last.Window.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(deps.last.Window.To.Equal(time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(deps.last.OrgFilter, ShouldEqual, "globex")
				So(deps.last.Relative, ShouldBeEmpty)
			})
		})

		Convey("When timestamps are requested", func() {
			w := serve(mux, http.MethodGet, "/api/usage?startDate=2025-01-01T09:00:00Z&endDate=2025-01-01T11:00:00%2B01:00")

			Convey("Then they are normalized to UTC", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last.Window.To.Equal(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(deps.last.Window.To.Location(), ShouldEqual, time.UTC)
			})
		})

		Convey("When parameters are invalid", func() {
			for _, target := range []string{
				"/api/usage?days=week",
				"/api/usage?days=0",
				"/api/usage?source=warehouse",
				"/api/usage?endDate=2025-01-01",
				"/api/usage?startDate=yesterday",
				"/api/usage?startDate=2025-01-02&endDate=2025-01-01T00:00:00Z",
			} {
				w := serve(mux, http.MethodGet, target)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorBody(w), ShouldNotBeEmpty)
			}
		})

		Convey("When every source fails", func() {
			deps.err = service.ErrSourcesFailed
			w := serve(mux, http.MethodGet, "/api/usage")

			Convey("Then a 500 with a generic message is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(errorBody(w), ShouldEqual, http.StatusText(http.StatusInternalServerError))
			})
		})

		Convey("When the chart and organizations are requested", func() {
			chart := serve(mux, http.MethodGet, "/api/usage/chart?days=1")
			orgs := serve(mux, http.MethodGet, "/api/usage/organizations?days=1")

			Convey("Then bare arrays are returned", func() {
				var points []types.ChartPoint
				var rows []types.OrganizationRow
				So(json.Unmarshal(chart.Body.Bytes(), &points), ShouldBeNil)
				So(json.Unmarshal(orgs.Body.Bytes(), &rows), ShouldBeNil)
				So(len(points), ShouldEqual, 2)
				So(len(rows), ShouldEqual, 1)
			})
		})

		Convey("When the cache is invalidated", func() {
			So(serve(mux, http.MethodGet, "/api/cache/invalidate").Code, ShouldEqual, http.StatusNotFound)
			w := serve(mux, http.MethodPost, "/api/cache/invalidate")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.invalidated, ShouldEqual, 1)
		})
	})
}

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims api.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok
}

func claims(role string, ttl time.Duration) api.Claims {
	return api.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Email: "ops@example.com",
		Role:  role,
	}
}

func TestAuth(t *testing.T) {
	Convey("Given an API requiring the admin role", t, func() {
		const secret = "s3cret"
		deps := &mockDependencies{}
		mux := newMux(deps, api.WithAuth(secret, "admin"))

		Convey("When no token is sent", func() {
			w := serve(mux, http.MethodGet, "/api/usage")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When an admin token is sent", func() {
			w := serve(mux, http.MethodGet, "/api/usage", "Authorization", sign(t, jwt.SigningMethodHS256, secret, claims("admin", time.Hour)))

			Convey("Then the identity reaches the handler", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.hasIdentity, ShouldBeTrue)
				So(deps.identity.UserID, ShouldEqual, "user-1")
				So(deps.identity.Email, ShouldEqual, "ops@example.com")
			})
		})

		Convey("When a non-admin token is sent", func() {
			w := serve(mux, http.MethodGet, "/api/usage", "Authorization", sign(t, jwt.SigningMethodHS256, secret, claims("viewer", time.Hour)))
			So(w.Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("When the token is expired", func() {
			w := serve(mux, http.MethodGet, "/api/usage", "Authorization", sign(t, jwt.SigningMethodHS256, secret, claims("admin", -time.Minute)))
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the token is signed with another key or algorithm", func() {
			So(serve(mux, http.MethodGet, "/api/usage", "Authorization", sign(t, jwt.SigningMethodHS256, "other", claims("admin", time.Hour))).Code,
				ShouldEqual, http.StatusUnauthorized)
			So(serve(mux, http.MethodGet, "/api/usage", "Authorization", sign(t, jwt.SigningMethodHS384, secret, claims("admin", time.Hour))).Code,
				ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Then health stays public", func() {
			So(serve(mux, http.MethodGet, "/healthz").Code, ShouldEqual, http.StatusOK)
		})
	})
}

type blockingDependencies struct {
	mockDependencies
	got error
}

func (b *blockingDependencies) GetUsage(ctx context.Context, _ service.UsageQuery) (types.UsageResponse, error) {
	<-ctx.Done()
	b.got = ctx.Err()
	return types.UsageResponse{}, b.got
}

func TestTimeout(t *testing.T) {
	Convey("Given a short request timeout", t, func() {
		deps := &blockingDependencies{}
		mux := newMux(deps, api.WithRequestTimeout(10*time.Millisecond))

		Convey("When the dependency outlives the deadline", func() {
			w := serve(mux, http.MethodGet, "/api/usage")

			Convey("Then the request is aborted", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(errors.Is(deps.got, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}
