package audit_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/adapters/audit"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func timeline() []domain.TradeRecord {
	return []domain.TradeRecord{
		{Action: domain.ActionEnter, PositionID: "P1", MarketID: "m1", Side: domain.SideYes, SignalID: "sig-1",
			Timestamp: t0, Price: 0.40, Contracts: 100, Amount: 40, CostBasis: 40, PositionContracts: 100, Edge: 0.15},
		{Action: domain.ActionSkip, MarketID: "m2", Timestamp: t0, Reason: "insufficient capital"},
		{Action: domain.ActionAddOn, PositionID: "P1", MarketID: "m1", Side: domain.SideYes,
			Timestamp: t0.Add(time.Hour), Price: 0.35, Contracts: 50, Amount: 17.5, CostBasis: 57.5, PositionContracts: 150, Edge: 0.2},
		{Action: domain.ActionExit, PositionID: "P1", MarketID: "m1", Side: domain.SideYes,
			Timestamp: t0.Add(2 * time.Hour), Price: 0.5, Contracts: 150, Amount: 75, CostBasis: 57.5,
			ExitReason: domain.ExitTakeProfit, RealizedPnL: 17.5},
	}
}

func openLog(t *testing.T, dir string) *audit.Log {
	t.Helper()
	l, _, err := audit.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func appendAll(t *testing.T, l *audit.Log, recs []domain.TradeRecord) {
	t.Helper()
	for _, r := range recs {
		ok, err := l.AppendTrade(r)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestAppendTrade_RebuildsPositionTimeline(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)
	appendAll(t, l, timeline())
	require.NoError(t, l.Close())

	l2, report, err := audit.Open(dir)
	require.NoError(t, err)
	defer l2.Close()

	assert.Equal(t, 4, report.Applied)
	assert.Zero(t, report.Corrupt)

	ix := l2.Index()
	p, ok := ix.Position("P1")
	require.True(t, ok)
	assert.Equal(t, domain.PositionClosed, p.Status)
	assert.Equal(t, domain.ExitTakeProfit, p.ExitReason)
	assert.Equal(t, 1, p.AddOns)
	assert.InDelta(t, 57.5, p.CostBasis, 1e-9)
	assert.InDelta(t, 150, p.Contracts, 1e-9)
	assert.InDelta(t, 0.40, p.EntryPrice, 1e-9)
	assert.NotEmpty(t, p.EntryRecordID)

	assert.Len(t, ix.Records("P1"), 3)
	assert.Equal(t, map[domain.TradeAction]int{
		domain.ActionEnter: 1, domain.ActionSkip: 1, domain.ActionAddOn: 1, domain.ActionExit: 1,
	}, ix.Counts())
	assert.True(t, ix.SignalExecuted("sig-1"))
	assert.False(t, ix.SignalExecuted("sig-2"))
}

func TestAppendTrade_DeduplicatesSameMinute(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)

	r := timeline()[0]
	ok, err := l.AppendTrade(r)
	require.NoError(t, err)
	assert.True(t, ok)

	r.Timestamp = r.Timestamp.Add(30 * time.Second)
	ok, err = l.AppendTrade(r)
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := os.ReadFile(filepath.Join(dir, audit.TradesFile))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestRebuild_Idempotent(t *testing.T) {
	l := openLog(t, t.TempDir())
	appendAll(t, l, timeline())

	_, err := l.Rebuild()
	require.NoError(t, err)
	first := l.Index()

	_, err = l.Rebuild()
	require.NoError(t, err)
	second := l.Index()

	assert.Equal(t, first.All(), second.All())
	assert.Equal(t, first.Positions(), second.Positions())
	assert.Equal(t, first.Counts(), second.Counts())
}

func TestReplay_DuplicateLinesMatchDeduplicatedLog(t *testing.T) {
	clean := t.TempDir()
	l := openLog(t, clean)
	appendAll(t, l, timeline())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(clean, audit.TradesFile))
	require.NoError(t, err)

	dup := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dup, audit.TradesFile), append(data, data...), 0o644))

	a := openLog(t, clean)
	b, report, err := audit.Open(dup)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 4, report.Duplicates)
	assert.Equal(t, a.Index().All(), b.Index().All())
	assert.Equal(t, a.Index().Positions(), b.Index().Positions())
	assert.Equal(t, a.Index().Counts(), b.Index().Counts())
}

func TestReplay_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)
	appendAll(t, l, timeline())
	require.NoError(t, l.Close())

	path := filepath.Join(dir, audit.TradesFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4)

	// tamper with the SKIP record and leave a torn line at the end
	lines[1] = strings.Replace(lines[1], "insufficient capital", "tampered", 1)
	corrupted := strings.Join(lines, "\n") + "\n{\"schema\":1,\"kind\":\"trade\",\"se"
	require.NoError(t, os.WriteFile(path, []byte(corrupted), 0o644))

	l2, report, err := audit.Open(dir)
	require.NoError(t, err)
	defer l2.Close()

	assert.Equal(t, 2, report.Corrupt)
	assert.Equal(t, []int{2, 5}, report.CorruptLines)
	assert.Equal(t, 3, l2.Index().Len())
	assert.Zero(t, l2.Index().Counts()[domain.ActionSkip])

	// appending after a torn line starts a fresh line
	ok, err := l2.AppendTrade(domain.TradeRecord{Action: domain.ActionSkip, MarketID: "m3", Timestamp: t0})
	require.NoError(t, err)
	assert.True(t, ok)

	verify, err := audit.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 2, verify.Corrupt)
	assert.Equal(t, 4, verify.Applied)
}

func TestReplay_RejectsFutureSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, audit.TradesFile)
	line := `{"schema":2,"kind":"trade","seq":1,"data":{},"hash":"00"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(line), 0o644))

	report, err := audit.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Corrupt)
}

func TestAppendCapital_LastSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)
	require.NoError(t, l.AppendCapital(domain.CapitalState{Initial: 1000, Available: 900, Allocated: 100, At: t0}))
	require.NoError(t, l.AppendCapital(domain.CapitalState{Initial: 1000, Available: 1010, RealizedPnL: 10, At: t0.Add(time.Hour)}))
	require.NoError(t, l.AppendPosition(domain.Position{ID: "P1", Status: domain.PositionOpen}))
	require.NoError(t, l.Close())

	l2 := openLog(t, dir)
	c, ok := l2.LastCapital()
	require.True(t, ok)
	assert.InDelta(t, 1010, c.Available, 1e-9)
	assert.InDelta(t, 10, c.RealizedPnL, 1e-9)

	report, err := audit.Verify(filepath.Join(dir, audit.PositionsFile))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
}

func TestAppendTrade_ContinuesSequenceAfterReopen(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)
	appendAll(t, l, timeline()[:2])
	require.NoError(t, l.Close())

	l2 := openLog(t, dir)
	appendAll(t, l2, timeline()[2:])
	require.NoError(t, l2.Close())

	data, err := os.ReadFile(filepath.Join(dir, audit.TradesFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"seq":4`)
}
