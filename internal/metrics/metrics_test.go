package metrics

import (
	"context"
	"crypto/sha256"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/events"
	"otc-exchange/internal/pda"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("swap", nil, time.Millisecond)
	m.ObserveOperation("swap", errs.ErrFillAmountTooSmall.Withf("fill 5"), time.Millisecond)
	m.ObserveOperation("swap", io.EOF, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("swap", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("swap", "FillAmountTooSmall")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("swap", "internal")))
}

func TestEmitCountsSwapVolume(t *testing.T) {
	m := New()
	src := pda.Address(sha256.Sum256([]byte("src")))
	dst := pda.Address(sha256.Sum256([]byte("dst")))

	rec := events.New(events.KindSwapExecuted, src, 1)
	rec.SourceMint, rec.DestinationMint = &src, &dst
	rec.AmountSource, rec.FeeAmount = 500, 2
	m.Emit(context.Background(), rec)
	m.Emit(context.Background(), rec)
	m.Emit(context.Background(), events.New(events.KindListingCreated, src, 1))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("swap.executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("listing.created")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.swapSource.WithLabelValues(src.String())))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.swapFees.WithLabelValues(dst.String())))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/listings/{address}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, addr := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/listings/"+addr, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/listings/{address}", "GET", "404")))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "otc_http_requests_total")
}
