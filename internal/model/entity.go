// Package model defines the domain types shared across the sync pipeline.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Market is the listing segment of an entity.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
)

// Markets lists every segment in catalog fetch order.
var Markets = []Market{MarketKOSPI, MarketKOSDAQ}

// SourceID returns the KRX market id used in request parameters.
func (m Market) SourceID() string {
	switch m {
	case MarketKOSPI:
		return "STK"
	case MarketKOSDAQ:
		return "KSQ"
	default:
		return "ALL"
	}
}

// ParseMarket converts a market label ("KOSPI", "kosdaq", "STK", "KSQ",
// "KOSDAQ GLOBAL") into a Market. Surrounding whitespace is ignored.
func ParseMarket(s string) (Market, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "KOSPI", "STK":
		return MarketKOSPI, nil
	case "KOSDAQ", "KOSDAQ GLOBAL", "KSQ":
		return MarketKOSDAQ, nil
	default:
		return "", eris.Errorf("unknown market: %q (valid: KOSPI, KOSDAQ)", s)
	}
}

// Entity is one tradable instrument in the catalog.
type Entity struct {
	Code          string    `json:"cmp_cd"`
	ISIN          string    `json:"isin_cd"`
	Name          string    `json:"cmp_nm"`
	Market        Market    `json:"mkt_type"`
	GICSCode      *string   `json:"gics_cd,omitempty"`
	GroupShare    *float64  `json:"mkt_cap_rt,omitempty"`
	ReferenceDate time.Time `json:"ref_dt"`
}

// SearchLabel is the "code/name" form the KRX finder widget expects.
func (e Entity) SearchLabel() string {
	return e.Code + "/" + e.Name
}
