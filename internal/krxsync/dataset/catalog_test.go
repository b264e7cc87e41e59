package dataset

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/krx-sync/internal/fetcher"
	"github.com/sells-group/krx-sync/internal/krx"
	"github.com/sells-group/krx-sync/internal/krxsync/transform"
	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/resilience"
)

func snapshotSource(t *testing.T) krx.Source {
	t.Helper()
	return krx.SourceFunc(func(_ context.Context, req krx.Request) (*fetcher.Table, error) {
		switch req.Screen {
		case krx.ScreenSector:
			assert.Equal(t, "20240103", req.Params.Get("trdDd"))
			switch req.Params.Get("mktId") {
			case "STK":
				return table(sectorHeader,
					[]string{"005930", "삼성전자", "KOSPI", "전기·전자", "72,000", "500", "0.70", "300"},
					[]string{"005380", "현대차", "KOSPI", "운송장비", "190,000", "0", "0.00", "100"},
				), nil
			case "KSQ":
				return table(sectorHeader,
					[]string{"035720", "카카오", "KOSDAQ GLOBAL", "IT 서비스", "50,000", "0", "0.00", "100"},
					[]string{"999999", "미분류", "KOSDAQ", "알수없음", "1,000", "0", "0.00", "50"},
				), nil
			}
		case krx.ScreenISIN:
			return table(isinHeader,
				[]string{"KR7005930003", "005930", "삼성전자보통주", "KOSPI"},
				[]string{"KR7005380001", "005380", "현대자동차보통주", "KOSPI"},
				[]string{"KR7035720002", "035720", "카카오보통주", "KOSDAQ"},
			), nil
		}
		t.Fatalf("unexpected request %s", req.Screen)
		return nil, nil
	})
}

type catalogRow struct {
	gics  string
	share sql.NullFloat64
	isin  sql.NullString
	refDt string
}

func TestSector_Sync(t *testing.T) {
	st := newTestStore(t)
	env := newTestEnv(t, st, snapshotSource(t))

	result, err := (&Sector{}).Sync(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.RowsSynced)
	assert.Equal(t, 4, result.Metadata["entities"])

	rows := map[string]catalogRow{}
	q, err := st.DB().Query(`SELECT cmp_cd, gics_cd, mkt_cap_rt, ref_dt FROM krx_stock_sector`)
	require.NoError(t, err)
	defer q.Close() //nolint:errcheck
	for q.Next() {
		var code string
		var r catalogRow
		require.NoError(t, q.Scan(&code, &r.gics, &r.share, &r.refDt))
		rows[code] = r
	}
	require.NoError(t, q.Err())
	require.Len(t, rows, 4)

	assert.Equal(t, "45", rows["005930"].gics)
	assert.Equal(t, "20", rows["005380"].gics, "운송 precedes 운송장비")
	assert.Equal(t, "45", rows["035720"].gics)
	assert.Equal(t, "N/A", rows["999999"].gics)

	// Shares are computed over both markets.
	assert.InDelta(t, 75.0, rows["005930"].share.Float64, 1e-9)
	assert.InDelta(t, 25.0, rows["035720"].share.Float64, 1e-9)
	assert.InDelta(t, 100.0, rows["005380"].share.Float64, 1e-9)
	assert.InDelta(t, 100.0, rows["999999"].share.Float64, 1e-9)
	assert.Equal(t, "2024-01-03", rows["005930"].refDt)
}

func TestTicker_SyncBuildsCatalog(t *testing.T) {
	st := newTestStore(t)
	env := newTestEnv(t, st, snapshotSource(t))
	ctx := context.Background()

	result, err := (&Ticker{}).Sync(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.RowsSynced)
	assert.Equal(t, 3, result.Metadata["isins"])

	entities, err := st.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 4)

	byCode := map[string]int{}
	for i, e := range entities {
		byCode[e.Code] = i
	}
	samsung := entities[byCode["005930"]]
	assert.Equal(t, "KR7005930003", samsung.ISIN)
	assert.Equal(t, "삼성전자", samsung.Name)
	assert.Equal(t, "KOSPI", string(samsung.Market))
	require.NotNil(t, samsung.GICSCode)
	assert.Equal(t, "45", *samsung.GICSCode)
	require.NotNil(t, samsung.GroupShare)
	assert.InDelta(t, 75.0, *samsung.GroupShare, 1e-9)
	assert.Equal(t, jan3, samsung.ReferenceDate)

	assert.Equal(t, model.MarketKOSDAQ, entities[byCode["035720"]].Market, "KOSDAQ GLOBAL is stored as KOSDAQ")
	assert.Empty(t, entities[byCode["999999"]].ISIN, "codes missing from the ISIN list stay empty")
}

func TestTicker_SyncIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	env := newTestEnv(t, st, snapshotSource(t))
	ctx := context.Background()

	_, err := (&Ticker{}).Sync(ctx, env)
	require.NoError(t, err)
	_, err = (&Ticker{}).Sync(ctx, env)
	require.NoError(t, err)

	entities, err := st.ListEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 4)
}

func TestSector_SyncSchemaMismatch(t *testing.T) {
	st := newTestStore(t)
	src := krx.SourceFunc(func(context.Context, krx.Request) (*fetcher.Table, error) {
		return table([]string{"종목코드", "종목명"}, []string{"005930", "삼성전자"}), nil
	})

	_, err := (&Sector{}).Sync(context.Background(), newTestEnv(t, st, src))
	require.Error(t, err)
	assert.Equal(t, resilience.CategorySchemaMismatch, resilience.Category(err))
	assert.False(t, resilience.IsRunScoped(err))
}

func TestSector_SyncAccessDenied(t *testing.T) {
	st := newTestStore(t)
	src := krx.SourceFunc(func(context.Context, krx.Request) (*fetcher.Table, error) {
		return nil, &resilience.AccessDeniedError{Target: krx.ScreenSector.ID()}
	})

	_, err := (&Sector{}).Sync(context.Background(), newTestEnv(t, st, src))
	require.Error(t, err)
	assert.True(t, resilience.IsRunScoped(err))
}

func TestMarketColumn(t *testing.T) {
	f := &transform.Frame{
		Columns: []string{"cmp_cd", "mkt_type"},
		Rows: [][]any{
			{"005930", "KOSPI"},
			{"035720", "KOSDAQ GLOBAL"},
			{"123456", "KONEX"},
			{"999999", nil},
		},
	}
	require.NoError(t, marketColumn("mkt_type")(f))

	got, err := f.Column("mkt_type")
	require.NoError(t, err)
	assert.Equal(t, []any{"KOSPI", "KOSDAQ", "KONEX", nil}, got)

	assert.Error(t, marketColumn("missing")(f))
}
