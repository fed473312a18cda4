package oracle

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/ledger"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

const (
	reporter   = "0xaaa0000000000000000000000000000000000001"
	stranger   = "0xbbb0000000000000000000000000000000000002"
	questionID = "0x00000000000000000000000000000000000000000000000000000000000000aa"
)

func newHook(t *testing.T) *Hook {
	t.Helper()
	v := vault.New(vault.NewMemoryLedger())
	clock := domain.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := ledger.New(v, clock, "USDS")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(l, reporter, logger)
}

func TestPrepareAndReport(t *testing.T) {
	h := newHook(t)

	c, err := h.Prepare(questionID, 2)
	require.NoError(t, err)
	assert.Equal(t, reporter, c.Oracle)
	assert.False(t, c.Resolved)

	c, err = h.Report(reporter, questionID, []uint64{1, 0})
	require.NoError(t, err)
	assert.True(t, c.Resolved)
	assert.Equal(t, []uint64{1, 0}, c.PayoutNumerators)
	assert.Equal(t, uint64(1), c.PayoutDenominator)
}

func TestReportRejectsWrongCaller(t *testing.T) {
	h := newHook(t)

	_, err := h.Prepare(questionID, 2)
	require.NoError(t, err)

	_, err = h.Report(stranger, questionID, []uint64{1, 0})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestReportOnce(t *testing.T) {
	h := newHook(t)

	_, err := h.Prepare(questionID, 2)
	require.NoError(t, err)

	_, err = h.Report(reporter, questionID, []uint64{0, 1})
	require.NoError(t, err)

	_, err = h.Report(reporter, questionID, []uint64{1, 0})
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestReportRejectsMalformedQuestionID(t *testing.T) {
	h := newHook(t)

	_, err := h.Report(reporter, "not-a-hash", []uint64{1, 0})
	assert.Error(t, err)
}
