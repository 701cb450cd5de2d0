package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quka-ai/kbcore/pkg/errors"
)

var errSentinel = stderrors.New("sentinel")

func TestWrapKeepsCodeAndCause(t *testing.T) {
	base := errors.New("SourceLogic.Get", "source not found", errSentinel).Code(http.StatusNotFound)
	wrapped := errors.Wrap(base, "IngestLogic.Ingest", "ingest failed")

	assert.Equal(t, http.StatusNotFound, wrapped.GetCode())
	assert.True(t, errors.Is(wrapped, errSentinel))
	assert.Equal(t, "ingest failed", wrapped.Message())
}

func TestTraceAppendsToExisting(t *testing.T) {
	base := errors.New("a", "msg", errSentinel)
	same := errors.Trace("b", base)

	assert.Same(t, base, same)
	assert.Contains(t, same.Error(), "a->b")
}

func TestMessageFallsBackToCause(t *testing.T) {
	e := errors.New("trace", "", errSentinel)
	assert.Equal(t, "sentinel", e.Message())
}
