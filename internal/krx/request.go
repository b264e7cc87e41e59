package krx

import (
	"net/url"
	"time"

	"github.com/sells-group/krx-sync/internal/model"
)

// Screen is a KRX data screen, posted as the bld parameter of the OTP request.
type Screen string

const (
	ScreenSector           Screen = "dbms/MDC/STAT/standard/MDCSTAT03901"
	ScreenISIN             Screen = "dbms/MDC/STAT/standard/MDCSTAT01901"
	ScreenAdjustedPrice    Screen = "dbms/MDC/STAT/standard/MDCSTAT01701"
	ScreenForeignOwnership Screen = "dbms/MDC/STAT/standard/MDCSTAT03702"
)

// ID returns the short screen identifier used in logs and errors.
func (s Screen) ID() string {
	str := string(s)
	for i := len(str) - 1; i >= 0; i-- {
		if str[i] == '/' {
			return str[i+1:]
		}
	}
	return str
}

// dayLayout is the YYYYMMDD form KRX expects in date parameters.
const dayLayout = "20060102"

// Request describes one OTP-protected download.
type Request struct {
	Screen Screen
	Params url.Values
}

// Form returns the OTP request body: the screen parameters plus the fixed
// download fields.
func (r Request) Form() url.Values {
	form := url.Values{}
	for k, v := range r.Params {
		form[k] = append([]string(nil), v...)
	}
	form.Set("locale", "ko_KR")
	form.Set("csvxls_isNo", "false")
	form.Set("name", "fileDown")
	form.Set("url", string(r.Screen))
	return form
}

// SectorRequest fetches the sector snapshot of one market on day.
func SectorRequest(market model.Market, day time.Time) Request {
	return Request{
		Screen: ScreenSector,
		Params: url.Values{
			"mktId": {market.SourceID()},
			"trdDd": {day.Format(dayLayout)},
			"money": {"1"},
		},
	}
}

// ISINRequest fetches the standard-code list of every listed instrument.
func ISINRequest() Request {
	return Request{
		Screen: ScreenISIN,
		Params: url.Values{
			"mktId": {"ALL"},
			"share": {"1"},
		},
	}
}

// AdjustedPriceRequest fetches split-adjusted daily prices of e between from and to.
func AdjustedPriceRequest(e model.Entity, from, to time.Time) Request {
	return Request{
		Screen: ScreenAdjustedPrice,
		Params: url.Values{
			"tboxisuCd_finder_stkisu0_1":   {e.SearchLabel()},
			"isuCd":                        {e.ISIN},
			"isuCd2":                       {e.Code},
			"codeNmisuCd_finder_stkisu0_1": {e.Name},
			"param1isuCd_finder_stkisu0_1": {"ALL"},
			"strtDd":                       {from.Format(dayLayout)},
			"endDd":                        {to.Format(dayLayout)},
			"adjStkPrc_check":              {"Y"},
			"adjStkPrc":                    {"1"},
			"share":                        {"1"},
			"money":                        {"1"},
		},
	}
}

// ForeignOwnershipRequest fetches daily foreign holdings of e between from and to.
func ForeignOwnershipRequest(e model.Entity, from, to time.Time) Request {
	return Request{
		Screen: ScreenForeignOwnership,
		Params: url.Values{
			"searchType":                   {"2"},
			"mktId":                        {"ALL"},
			"tboxisuCd_finder_stkisu0_7":   {e.SearchLabel()},
			"isuCd":                        {e.ISIN},
			"isuCd2":                       {e.Code},
			"codeNmisuCd_finder_stkisu0_7": {e.Name},
			"param1isuCd_finder_stkisu0_7": {"ALL"},
			"strtDd":                       {from.Format(dayLayout)},
			"endDd":                        {to.Format(dayLayout)},
			"share":                        {"1"},
		},
	}
}
