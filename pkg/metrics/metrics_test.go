package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "lapboard")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})
		})

		Convey("When empty option values are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "lapboard")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording cache lookups", func() {
			before := testutil.ToFloat64(globalManager.cacheLookups.WithLabelValues(CacheHit))
			RecordCacheLookup(CacheHit)
			RecordCacheLookup(CacheHit)

			Convey("Then the counter should increase", func() {
				after := testutil.ToFloat64(globalManager.cacheLookups.WithLabelValues(CacheHit))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording normalized rows", func() {
			before := testutil.ToFloat64(globalManager.recordsNormalized.WithLabelValues(RecordParsed))
			RecordNormalized(RecordParsed, 5)
			RecordNormalized(RecordParsed, 0)

			Convey("Then only positive counts are added", func() {
				after := testutil.ToFloat64(globalManager.recordsNormalized.WithLabelValues(RecordParsed))
				So(after-before, ShouldEqual, 5)
			})
		})

		Convey("When setting gauges", func() {
			UpdateCacheEntries(3)
			UpdateRosterPilots(12)
			UpdateBreakerState("upstream", 2)

			Convey("Then the latest values are reported", func() {
				So(testutil.ToFloat64(globalManager.cacheEntries), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.rosterPilots), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.breakerState.WithLabelValues("upstream")), ShouldEqual, 2)
			})
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordUpstreamRequest("ok")
				RecordUpstreamLatency(120)
				RecordLeaderboardSize(10)
				RecordRosterError("active_pilots")
				RecordNotification(NotificationSent)
				UpdateNotifyQueueSize(1)
				RecordHTTPRequest("leaderboard", "GET", "200")
				RecordHTTPRequestDuration("leaderboard", "GET", "200", 5)
				RecordErrorByType("server_error", "high")
				RecordErrorByEndpoint("leaderboard", "GET", "server_error")
				RecordErrorLatency("http", "server_error", 12)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry should gather without error", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.notifications.WithLabelValues(NotificationDropped))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				RecordNotification(NotificationDropped)
			}()
		}
		wg.Wait()

		after := testutil.ToFloat64(globalManager.notifications.WithLabelValues(NotificationDropped))
		So(after-before, ShouldEqual, 50)
	})
}
