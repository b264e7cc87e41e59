package fetcher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	// Drain error channel
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestStreamCSV_WithHeader(t *testing.T) {
	input := "name,age\nalice,30\nbob,25\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"alice", "30"}, rows[0])
	assert.Equal(t, []string{"name", "age"}, <-headerCh)
}

func TestStreamCSV_EUCKR(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().String("일자,종가\n2024/01/02,78500\n")
	require.NoError(t, err)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(encoded), CSVOptions{Encoding: korean.EUCKR})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"일자", "종가"}, rows[0])
	assert.Equal(t, []string{"2024/01/02", "78500"}, rows[1])
}

func TestStreamCSV_TrimSpaceAndBOM(t *testing.T) {
	input := "\ufeffcode, name \n 005930 , 삼성전자 \n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "name"}, rows[0])
	assert.Equal(t, []string{"005930", "삼성전자"}, rows[1])
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("a,b,c\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	<-rowCh
	cancel()

	done := make(chan struct{})
	go func() {
		for range rowCh {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StreamCSV did not stop after cancellation")
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadTable(t *testing.T) {
	data := []byte(" 일자 ,종가,대비\n2024/01/03,101,1\n2024/01/02,100,0\n")
	tbl, err := ReadTable(context.Background(), data, CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"일자", "종가", "대비"}, tbl.Header)
	assert.Equal(t, 2, tbl.Len())

	idx, ok := tbl.Index("종가")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = tbl.Index("시가")
	assert.False(t, ok)
}

func TestReadTable_Empty(t *testing.T) {
	_, err := ReadTable(context.Background(), []byte("  \n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty payload")
}

func TestReadTable_Malformed(t *testing.T) {
	_, err := ReadTable(context.Background(), []byte("a,b\n\"unterminated,1\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestTable_Concat(t *testing.T) {
	a := &Table{Header: []string{"x", "y"}, Records: [][]string{{"1", "2"}}}
	b := &Table{Header: []string{"x", "y"}, Records: [][]string{{"3", "4"}}}
	require.NoError(t, a.Concat(b))
	assert.Equal(t, 2, a.Len())

	empty := &Table{}
	require.NoError(t, empty.Concat(b))
	assert.Equal(t, []string{"x", "y"}, empty.Header)

	c := &Table{Header: []string{"x"}}
	require.Error(t, a.Concat(c))
}
