package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Network is a closed set of supported blockchains.
type Network string

const (
	NetworkEthereum  Network = "ethereum"
	NetworkPolygon   Network = "polygon"
	NetworkBSC       Network = "bsc"
	NetworkAvalanche Network = "avalanche"
	NetworkArbitrum  Network = "arbitrum"
	NetworkOptimism  Network = "optimism"
)

// SupportedNetworks lists every network the system will route requests to.
var SupportedNetworks = map[Network]bool{
	NetworkEthereum:  true,
	NetworkPolygon:   true,
	NetworkBSC:       true,
	NetworkAvalanche: true,
	NetworkArbitrum:  true,
	NetworkOptimism:  true,
}

func (n Network) Valid() bool { return SupportedNetworks[n] }

// Provenance tags the tier that produced a PriceRecord.
type Provenance string

const (
	FromCache    Provenance = "fromCache"
	FromDB       Provenance = "fromDB"
	FromAPI      Provenance = "fromAPI"
	Interpolated Provenance = "interpolated"
)

// InterpolationMethod distinguishes the two synthesis strategies.
type InterpolationMethod string

const (
	MethodLinear        InterpolationMethod = "linear"
	MethodExtrapolation InterpolationMethod = "extrapolation"
)

// PriceRecord is the unit of storage and the unit of reply.
//
// Timestamp is nil for the "current" snapshot of (Token, Network); see
// SPEC_FULL.md §9 Open Question (b). A non-nil Timestamp identifies a
// historical observation.
type PriceRecord struct {
	Token     string          `json:"token"`
	Network   Network         `json:"network"`
	Timestamp *time.Time      `json:"timestamp"`
	USD       decimal.Decimal `json:"usd"`
	LastUpdated time.Time     `json:"lastUpdated"`

	Symbol      string `json:"symbol,omitempty"`
	Name        string `json:"name,omitempty"`
	Decimals    int32  `json:"decimals,omitempty"`
	TotalSupply string `json:"totalSupply,omitempty"`
	LogoURI     string `json:"logoUri,omitempty"`

	Provenance Provenance `json:"provenance"`

	// Populated only when Provenance == Interpolated.
	InterpolatedFlag bool                 `json:"interpolated,omitempty"`
	Method           InterpolationMethod  `json:"method,omitempty"`
	Confidence       float64              `json:"confidence,omitempty"`
	DataPointsUsed   []PriceRecord        `json:"dataPointsUsed,omitempty"`
}

// TimestampKey renders the timestamp part of the record's identity:
// RFC3339 in UTC, or "current" when Timestamp is nil.
func (p PriceRecord) TimestampKey() string {
	if p.Timestamp == nil {
		return "current"
	}
	return p.Timestamp.UTC().Format(time.RFC3339)
}

// DailyRollupEntry is one (timestamp, usd, source) append in a rollup.
type DailyRollupEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	USD       decimal.Decimal `json:"usd"`
	Source    Provenance      `json:"source"`
}

// DailyRollup aggregates all PriceRecords observed within a UTC day.
type DailyRollup struct {
	Token     string          `json:"token"`
	Network   Network         `json:"network"`
	Date      string          `json:"date"` // YYYY-MM-DD UTC
	Count     int64           `json:"count"`
	FirstUSD  decimal.Decimal `json:"firstPrice"`
	LastUSD   decimal.Decimal `json:"lastPrice"`
	MinUSD    decimal.Decimal `json:"minPrice"`
	MaxUSD    decimal.Decimal `json:"maxPrice"`
	Prices    []DailyRollupEntry `json:"prices"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TokenEntry is the registry row for a discovered (token, network) pair.
type TokenEntry struct {
	Token        string     `json:"token"`
	Network      Network    `json:"network"`
	CreationDate *time.Time `json:"creationDate"`
	AddedAt      time.Time  `json:"addedAt"`
}

// CacheStatsBucket counts cache operations for one UTC day.
type CacheStatsBucket struct {
	Date           string           `json:"date"`
	Hit            int64            `json:"hit"`
	Miss           int64            `json:"miss"`
	Set            int64            `json:"set"`
	Delete         int64            `json:"delete"`
	Total          int64            `json:"total"`
	ByStrategy     map[string]int64 `json:"byStrategy"`
}

// ArchivedRecord is a PriceRecord moved out of the live table.
type ArchivedRecord struct {
	PriceRecord
	ArchivedAt time.Time `json:"archivedAt"`
	Compressed bool      `json:"compressed"`
}
