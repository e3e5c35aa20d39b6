package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/whisper/pgsession/internal/session"
)

func TestOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{session.NewError("load", session.KindDecode, errors.New("bad")), "decode"},
		{session.NewError("create", session.KindPool, nil), "pool"},
		{errors.New("plain"), "error"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Outcome(c.err), "Outcome(%v)", c.err)
	}
}

func TestObserveStoreOp(t *testing.T) {
	before := testutil.ToFloat64(StoreOperationsTotal.WithLabelValues("test_op", "backend"))

	err := error(session.NewError("test_op", session.KindBackend, errors.New("boom")))
	ObserveStoreOp("test_op", time.Now(), &err)

	after := testutil.ToFloat64(StoreOperationsTotal.WithLabelValues("test_op", "backend"))
	assert.Equal(t, float64(1), after-before)
}
