package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2025, 6, 15, 12, 0, 30, 0, time.UTC)

// fakeUsage answers /api/usage with a well-formed series for the requested
// window, optionally corrupted.
func fakeUsage(t *testing.T, corrupt func(*types.UsageResponse)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			return
		}
		q := r.URL.Query()
		win := model.AllTimeWindow()
		if s := q.Get("startDate"); s != "" {
			from, _ := time.Parse(time.RFC3339, s)
			to, _ := time.Parse(time.RFC3339, q.Get("endDate"))
			win, _ = model.NewWindow(from, to)
		}
		g := bucket.SelectGranularity(win)
		resp := types.UsageResponse{
			Source:        q.Get("source"),
			Granularity:   g.String(),
			ScalingFactor: 1,
			Organizations: []types.OrganizationRow{{OrgID: "acme", Requests: 3}, {OrgID: "globex", Requests: 1}},
		}
		if !win.AllTime {
			for _, k := range g.Keys(g.Truncate(win.From), g.Truncate(win.To.Add(-time.Nanosecond))) {
				resp.ChartData = append(resp.ChartData, types.ChartPoint{Timestamp: k})
			}
		}
		if corrupt != nil {
			corrupt(&resp)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func config(url string) *Config {
	return &Config{
		BaseURL: url,
		Sources: []string{"telemetry", "ledger"},
		Windows: []string{"1h", "24h", "7d", "all"},
		TopN:    10,
		Workers: 3,
		Timeout: 5 * time.Second,
	}
}

func TestBuildCases(t *testing.T) {
	Convey("Given two sources and two windows", t, func() {
		cfg := config("http://x")
		cfg.Windows = []string{"24h", "all"}
		cfg.Org = "acme"
		cases := BuildCases(cfg, now)

		Convey("Then every combination is built on whole minutes", func() {
			So(len(cases), ShouldEqual, 4)
			So(cases[0].Name, ShouldEqual, "telemetry/24h")
			So(cases[0].Window.To.Equal(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)
			So(cases[0].Window.Duration(), ShouldEqual, 24*time.Hour)
			So(cases[1].Window.AllTime, ShouldBeTrue)
			So(cases[1].Query().Get("startDate"), ShouldBeEmpty)
			So(cases[0].Query().Get("selectedOrg"), ShouldEqual, "acme")
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a one hour case", t, func() {
		c := Case{Source: "telemetry", Window: model.Window{From: now.Add(-time.Hour), To: now}}
		good := func() types.UsageResponse {
			resp := types.UsageResponse{Source: "telemetry", Granularity: "minute", ScalingFactor: 1}
			for _, k := range bucket.Minute.Keys(bucket.Minute.Truncate(c.Window.From), bucket.Minute.Truncate(c.Window.To.Add(-time.Nanosecond))) {
				resp.ChartData = append(resp.ChartData, types.ChartPoint{Timestamp: k})
			}
			return resp
		}

		Convey("When the response is well formed", func() {
			So(Verify(c, good(), 10), ShouldBeEmpty)
		})

		Convey("When a bucket is missing", func() {
			resp := good()
			resp.ChartData = append(resp.ChartData[:5], resp.ChartData[6:]...)
			So(len(Verify(c, resp, 10)), ShouldEqual, 2)
		})

		Convey("When the granularity is wrong", func() {
			resp := good()
			resp.Granularity = "hour"
			So(Verify(c, resp, 10), ShouldNotBeEmpty)
		})

		Convey("When the ledger degraded to day probes", func() {
			resp := good()
			resp.Source = "ledger"
			resp.Granularity = "day"
			resp.ChartData = resp.ChartData[:1]
			So(Verify(Case{Source: "ledger", Window: c.Window}, resp, 10), ShouldBeEmpty)
		})

		Convey("When organizations break the list contract", func() {
			resp := good()
			resp.Organizations = []types.OrganizationRow{{OrgID: "a", Requests: 1}, {OrgID: "b", Requests: 5}, {OrgID: "b", Requests: 0}}
			v := Verify(Case{Source: "telemetry", Window: c.Window, Org: "a"}, resp, 2)
			So(len(v), ShouldEqual, 4)
		})

		Convey("When totals are negative or the factor shrinks", func() {
			resp := good()
			resp.Summary.TotalCost = -1
			resp.ScalingFactor = 0.5
			resp.Sampled = true
			So(len(Verify(c, resp, 10)), ShouldEqual, 3)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()

		Convey("When every response is valid", func() {
			srv := fakeUsage(t, nil)
			defer srv.Close()
			var out bytes.Buffer
			report, err := Run(ctx, config(srv.URL), now, &out)

			Convey("Then the run passes and reports every case", func() {
				So(err, ShouldBeNil)
				So(report.RunID, ShouldNotBeEmpty)
				So(len(report.Results), ShouldEqual, 8)
				So(report.Failed, ShouldEqual, 0)
				So(out.String(), ShouldContainSubstring, "telemetry/7d")
				So(out.String(), ShouldContainSubstring, "ledger/all")
			})
		})

		Convey("When the service breaks an invariant", func() {
			srv := fakeUsage(t, func(r *types.UsageResponse) {
				if len(r.ChartData) > 2 {
					r.ChartData[1], r.ChartData[2] = r.ChartData[2], r.ChartData[1]
				}
			})
			defer srv.Close()
			var out bytes.Buffer
			report, err := Run(ctx, config(srv.URL), now, &out)

			Convey("Then the run fails", func() {
				So(errors.Is(err, ErrViolations), ShouldBeTrue)
				So(report.Failed, ShouldEqual, 6)
				So(out.String(), ShouldContainSubstring, "gap-free")
			})
		})

		Convey("When the service is down", func() {
			srv := fakeUsage(t, nil)
			srv.Close()
			_, err := Run(ctx, config(srv.URL), now, &bytes.Buffer{})
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})

		Convey("When the configuration is invalid", func() {
			cfg := config("http://x")
			cfg.Windows = []string{"fortnight"}
			_, err := Run(ctx, cfg, now, &bytes.Buffer{})
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
