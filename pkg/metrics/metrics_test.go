package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "usagedash")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording telemetry metrics", func() {
			before := testutil.ToFloat64(globalManager.telemetryPages)
			RecordTelemetryPage()
			RecordTelemetryPage()
			RecordTelemetryEvents(150)

			Convey("Then counters advance", func() {
				So(testutil.ToFloat64(globalManager.telemetryPages), ShouldEqual, before+2)
				So(func() {
					RecordTelemetryPageFailure("first")
					RecordTelemetryPageFailure("later")
					RecordTelemetryDuplicate()
					RecordTelemetryFetchDuration(12.5)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording ledger metrics", func() {
			RecordLedgerQuery("count", nil, 3)
			RecordLedgerQuery("count", errors.New("boom"), 4)
			UpdateLedgerScalingFactor(6.25)

			Convey("Then labelled series exist", func() {
				So(testutil.ToFloat64(globalManager.ledgerQueries.WithLabelValues("count", "error")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.ledgerScalingFactor), ShouldEqual, 6.25)
			})
		})

		Convey("When recording façade and HTTP metrics", func() {
			So(func() {
				RecordFallback("series")
				RecordCacheHit("usage")
				RecordCacheMiss("usage")
				RecordAttribution("metadata_org_id")
				RecordLedgerSampled()
				RecordLedgerRenormalized()
				RecordHTTPRequest("usage", "GET", "200")
				RecordHTTPRequestDuration("usage", "GET", "200", 5.0)
				RecordErrorByComponent("telemetry", "upstream")
				RecordErrorByType("server_error", "high")
				RecordErrorByEndpoint("usage", "GET", "server_error")
				RecordErrorLatency("http", "server_error", 10)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)
		})

		Convey("When reading the registry", func() {
			Convey("Then it is the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
