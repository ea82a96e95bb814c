package demo

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/rudderlabs/rudder-go-kit/stats"
)

// StatMiddleware records the response time of every request, tagged by method and
// status code, along with the number of requests in flight.
func StatMiddleware(stat stats.Stats) func(http.Handler) http.Handler {
	var concurrentRequests int32
	activeClientCount := stat.NewStat("demo_concurrent_requests_count", stats.GaugeType)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			activeClientCount.Gauge(int(atomic.AddInt32(&concurrentRequests, 1)))
			defer func() {
				activeClientCount.Gauge(int(atomic.AddInt32(&concurrentRequests, -1)))
			}()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			stat.NewTaggedStat("demo_response_time", stats.TimerType, stats.Tags{
				"method": r.Method,
				"route":  route(r),
				"code":   strconv.Itoa(ww.Status()),
			}).Since(start)
		})
	}
}

// route keeps the tag cardinality bounded, everything but the root is echoed.
func route(r *http.Request) string {
	if r.URL.Path == "/" {
		return "/"
	}
	return "echo"
}
