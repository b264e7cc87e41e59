package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/krx-sync/internal/fetcher"
	"github.com/sells-group/krx-sync/internal/krx"
	"github.com/sells-group/krx-sync/internal/krxsync"
	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/store"
)

var (
	jan2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	jan3 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	priceHeader   = []string{"일자", "종가", "대비", "등락률", "시가", "고가", "저가", "거래량", "거래대금", "시가총액", "상장주식수"}
	foreignHeader = []string{"일자", "종가", "대비", "등락률", "상장주식수", "외국인 보유수량", "외국인 지분율", "외국인 한도수량", "외국인 한도소진율"}
	sectorHeader  = []string{"종목코드", "종목명", "시장구분", "업종명", "종가", "대비", "등락률", "시가총액"}
	isinHeader    = []string{"표준코드", "단축코드", "한글 종목명", "시장구분"}
)

func table(header []string, records ...[]string) *fetcher.Table {
	return &fetcher.Table{Header: header, Records: records}
}

func priceRecord(day, close string) []string {
	return []string{day, close, "0", "0.00", close, close, close, "1,000", "100,000", "1,000,000", "10,000"}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "krx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestEnv(t *testing.T, st store.Store, src krx.Source) Env {
	t.Helper()
	return Env{
		Store:       st,
		Source:      src,
		Ledger:      krxsync.NewLedger(filepath.Join(t.TempDir(), "errors")),
		Day:         jan3,
		From:        time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		Concurrency: 1,
		RunID:       "test-run",
	}
}

// fakeSource answers by screen and entity code and records every request.
type fakeSource struct {
	mu       sync.Mutex
	requests []krx.Request
	respond  func(req krx.Request) (*fetcher.Table, error)
}

func (f *fakeSource) Fetch(_ context.Context, req krx.Request) (*fetcher.Table, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

// codes returns the entity codes requested, in order.
func (f *fakeSource) codes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if c := r.Params.Get("isuCd2"); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func entity(code, name string) model.Entity {
	return model.Entity{Code: code, ISIN: "KR7" + code + "003", Name: name, Market: model.MarketKOSPI}
}

func seedTicker(t *testing.T, st store.Store, entities ...model.Entity) {
	t.Helper()
	rows := make([][]any, len(entities))
	for i, e := range entities {
		rows[i] = []any{e.Code, e.ISIN, e.Name, string(e.Market), nil, nil, jan3}
	}
	_, err := st.Write(context.Background(), store.Batch{
		Table:   "krx.stock_ticker",
		Columns: []string{"cmp_cd", "isin_cd", "cmp_nm", "mkt_type", "gics_cd", "mkt_cap_rt", "ref_dt"},
		Keys:    []string{"cmp_cd"},
		Rows:    rows,
	})
	require.NoError(t, err)
}

// ledgerLines returns the lines of a ledger file, or nil when absent.
func ledgerLines(t *testing.T, l *krxsync.Ledger, name string) []string {
	t.Helper()
	data, err := os.ReadFile(l.Path(name))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
