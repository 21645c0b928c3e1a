package station

import "time"

// Station is one entry in the immutable reference catalog.
// Core fields are always present; enrichment fields come from the extended
// dataset and may be absent.
type Station struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	PriceClass int    `json:"priceClass" db:"price_class"` // 1 (most valuable) .. 7
	PointValue int    `json:"pointValue" db:"point_value"` // always (8 - PriceClass) * 10
	State      string `json:"state" db:"state"`

	StationNumber string   `json:"stationNumber,omitempty" db:"station_number"`
	EVANumber     string   `json:"evaNumber,omitempty" db:"eva_number"`
	PriceSmall    string   `json:"priceSmall,omitempty" db:"price_small"`
	PriceLarge    string   `json:"priceLarge,omitempty" db:"price_large"`
	Longitude     *float64 `json:"longitude,omitempty" db:"longitude"`
	Latitude      *float64 `json:"latitude,omitempty" db:"latitude"`
	City          string   `json:"city,omitempty" db:"city"`
	Zipcode       string   `json:"zipcode,omitempty" db:"zipcode"`
	Street        string   `json:"street,omitempty" db:"street"`
	Verbund       string   `json:"verbund,omitempty" db:"verbund"`
	OperatorShort string   `json:"operatorShort,omitempty" db:"operator_short"`
	OperatorName  string   `json:"operatorName,omitempty" db:"operator_name"`
	ProductLine   string   `json:"productLine,omitempty" db:"product_line"`
	Segment       string   `json:"segment,omitempty" db:"segment"`
	HasParking    bool     `json:"hasParking" db:"has_parking"`
	HasWifi       bool     `json:"hasWifi" db:"has_wifi"`
	HasDBLounge   bool     `json:"hasDBLounge" db:"has_db_lounge"`
	IsMainStation bool     `json:"isMainStation" db:"is_main_station"`
}

// PointsForPriceClass derives the point value from a price tier.
// Tier 1 is the most valuable, so the scale is inverted.
func PointsForPriceClass(priceClass int) int {
	return (8 - priceClass) * 10
}

// CollectionEntry records that the user collected a station.
// Station is a denormalized snapshot taken at collection time, so the entry
// stays correct even if the catalog is later re-imported with different
// point values.
type CollectionEntry struct {
	StationID string    `json:"stationId"`
	Timestamp time.Time `json:"timestamp"`
	Station   Station   `json:"station"`
}

// TierStat is a collected/total completion pair for one bucket.
type TierStat struct {
	Collected int `json:"collected"`
	Total     int `json:"total"`
}

// Stats is the single cached aggregate record.
//
// TotalPoints, TotalStations, LastUpdated and FirstLaunch are maintained
// transactionally alongside every collection mutation. The remaining fields
// are derived by recomputation on every read (see Service.CollectionStats)
// and only cached back into the row for consumers that read it directly.
type Stats struct {
	TotalPoints   int       `json:"totalPoints"`
	TotalStations int       `json:"totalStations"`
	LastUpdated   time.Time `json:"lastUpdated"`
	FirstLaunch   bool      `json:"firstLaunch"`

	PriceClassStats   map[int]TierStat `json:"priceClassStats,omitempty"`
	MainStationStats  TierStat         `json:"mainStationStats"`
	StationsThisMonth int              `json:"stationsThisMonth"`
	Level             string           `json:"level,omitempty"`
	MonthStreak       int              `json:"monthStreak"`
}

// AddOutcome is the result of an add operation. AlreadyCollected is an
// expected business outcome, not an error.
type AddOutcome int

const (
	Added AddOutcome = iota
	AlreadyCollected
)

func (o AddOutcome) String() string {
	if o == Added {
		return "added"
	}
	return "already collected"
}

// RemoveOutcome is the result of a remove operation. NotFound is an expected
// business outcome, not an error.
type RemoveOutcome int

const (
	Removed RemoveOutcome = iota
	NotFound
)

func (o RemoveOutcome) String() string {
	if o == Removed {
		return "removed"
	}
	return "not found"
}
