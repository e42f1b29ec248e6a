package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAnalysis(t *testing.T) {
	before := testutil.ToFloat64(AnalysesTotal.WithLabelValues("text", "format"))
	ObserveAnalysis("text", "format")
	ObserveAnalysis("text", "format")
	assert.Equal(t, before+2, testutil.ToFloat64(AnalysesTotal.WithLabelValues("text", "format")))
}

func TestObserveVerdictAndFetch(t *testing.T) {
	before := testutil.ToFloat64(VerdictsTotal.WithLabelValues("image", "hoax"))
	ObserveVerdict("image", "hoax")
	assert.Equal(t, before+1, testutil.ToFloat64(VerdictsTotal.WithLabelValues("image", "hoax")))

	beforeFetch := testutil.ToFloat64(ImageFetchesTotal.WithLabelValues("content_type"))
	ObserveImageFetch("content_type")
	assert.Equal(t, beforeFetch+1, testutil.ToFloat64(ImageFetchesTotal.WithLabelValues("content_type")))
}

func TestObserveModelCall(t *testing.T) {
	ObserveModelCall("groq", nil, 1200*time.Millisecond)
	ObserveModelCall("groq", errors.New("boom"), time.Second)
	assert.Equal(t, 2, testutil.CollectAndCount(ModelCallSeconds))
}
