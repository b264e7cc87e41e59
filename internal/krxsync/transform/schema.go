package transform

import "math"

// Column maps one source-native column to its canonical name and kind.
type Column struct {
	Name     string // canonical name
	Source   string // source-native header
	Kind     Kind
	Required bool // a missing source column is a schema mismatch

	// Min and Max are the destination bounds for KindInt columns; both zero
	// means unbounded.
	Min, Max int64
}

func (c Column) bounded() bool {
	return c.Kind == KindInt && (c.Min != 0 || c.Max != 0)
}

// Schema is the single declaration of a canonical table shape: the source
// columns it reads and the output columns it produces.
type Schema struct {
	Name       string
	Fields     []Column
	InjectCode bool     // prepend the entity code as cmp_cd
	DateColumn string   // rows are sorted on this column, descending; empty = keep order
	Output     []string // final column selection, in order
}

// Field returns the declared field with the given canonical name.
func (s Schema) Field(name string) (Column, bool) {
	for _, c := range s.Fields {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// CodeColumn is the canonical entity code column shared by every table.
const CodeColumn = "cmp_cd"

func int32Col(name, source string, required bool) Column {
	return Column{Name: name, Source: source, Kind: KindInt, Required: required, Min: math.MinInt32, Max: math.MaxInt32}
}

// AdjustedPrice is the canonical shape of krx.stock_price price columns.
var AdjustedPrice = Schema{
	Name: "adjusted_price",
	Fields: []Column{
		{Name: "trd_dt", Source: "일자", Kind: KindDate, Required: true},
		int32Col("cls_prc", "종가", true),
		int32Col("prc_chg", "대비", false),
		{Name: "fluc_rt", Source: "등락률", Kind: KindFloat},
		int32Col("opn_prc", "시가", false),
		int32Col("high_prc", "고가", false),
		int32Col("low_prc", "저가", false),
		{Name: "trd_vol", Source: "거래량", Kind: KindInt},
		{Name: "trd_amt", Source: "거래대금", Kind: KindInt},
		{Name: "mkt_cap", Source: "시가총액", Kind: KindInt},
		{Name: "list_shr", Source: "상장주식수", Kind: KindInt},
	},
	InjectCode: true,
	DateColumn: "trd_dt",
	Output: []string{
		CodeColumn, "trd_dt", "cls_prc", "prc_chg", "fluc_rt", "opn_prc", "high_prc",
		"low_prc", "trd_vol", "trd_amt", "mkt_cap", "list_shr",
	},
}

// ForeignOwnership is the canonical shape of the krx.stock_price foreign
// ownership columns.
var ForeignOwnership = Schema{
	Name: "foreign_ownership",
	Fields: []Column{
		{Name: "trd_dt", Source: "일자", Kind: KindDate, Required: true},
		{Name: "frg_hld_shr", Source: "외국인 보유수량", Kind: KindInt, Required: true},
		{Name: "frg_own_rt", Source: "외국인 지분율", Kind: KindFloat, Required: true},
		{Name: "frg_lmt_shr", Source: "외국인 한도수량", Kind: KindInt},
		{Name: "frg_lmt_rt", Source: "외국인 한도소진율", Kind: KindFloat},
	},
	InjectCode: true,
	DateColumn: "trd_dt",
	Output:     []string{CodeColumn, "trd_dt", "frg_hld_shr", "frg_own_rt", "frg_lmt_shr", "frg_lmt_rt"},
}

// sectorFields are the columns read from the per-market sector snapshot.
var sectorFields = []Column{
	{Name: CodeColumn, Source: "종목코드", Kind: KindText, Required: true},
	{Name: "cmp_nm", Source: "종목명", Kind: KindText, Required: true},
	{Name: "mkt_type", Source: "시장구분", Kind: KindText, Required: true},
	{Name: "sec_nm", Source: "업종명", Kind: KindText, Required: true},
	{Name: "mkt_cap", Source: "시가총액", Kind: KindInt, Required: true},
}

// Sector is the canonical shape of krx.stock_sector. gics_cd, mkt_cap_rt
// and ref_dt are derived.
var Sector = Schema{
	Name:   "sector",
	Fields: sectorFields,
	Output: []string{CodeColumn, "cmp_nm", "mkt_cap", "mkt_type", "gics_cd", "mkt_cap_rt", "ref_dt"},
}

// Ticker is the canonical shape of krx.stock_ticker, the entity catalog.
// isin_cd is joined from the ISIN list.
var Ticker = Schema{
	Name:   "ticker",
	Fields: sectorFields,
	Output: []string{CodeColumn, "isin_cd", "cmp_nm", "mkt_type", "gics_cd", "mkt_cap_rt", "ref_dt"},
}

// ISIN maps short codes to standard codes.
var ISIN = Schema{
	Name: "isin",
	Fields: []Column{
		{Name: CodeColumn, Source: "단축코드", Kind: KindText, Required: true},
		{Name: "isin_cd", Source: "표준코드", Kind: KindText, Required: true},
	},
	Output: []string{CodeColumn, "isin_cd"},
}
