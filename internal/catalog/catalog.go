// Package catalog loads the station reference dataset into the database.
// The dataset is a header-mapped CSV produced by an external enrichment
// pipeline; import replaces the whole catalog in one transaction.
package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bahnhofjaeger/internal/station"
)

// ErrNoValidRows is returned when the dataset parsed but produced no usable
// stations. The destructive catalog swap never starts in that case.
var ErrNoValidRows = errors.New("no valid stations in dataset")

// Importer parses the dataset and replaces the catalog.
type Importer struct {
	db     station.Database
	logger station.Logger
	client *http.Client
}

func NewImporter(db station.Database, logger station.Logger) *Importer {
	return &Importer{
		db:     db,
		logger: logger,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// ImportFile imports the dataset from a local file.
func (i *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()

	return i.Import(ctx, f)
}

// ImportURL fetches the dataset over HTTP and imports it.
func (i *Importer) ImportURL(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating dataset request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching dataset %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetching dataset %s: status %d", url, resp.StatusCode)
	}

	return i.Import(ctx, resp.Body)
}

// Import parses the CSV and swaps the catalog. Parsing and validation happen
// entirely before the destructive transaction begins, so a bad dataset leaves
// any existing catalog untouched.
func (i *Importer) Import(ctx context.Context, r io.Reader) (int, error) {
	stations, err := Parse(r, i.logger)
	if err != nil {
		return 0, err
	}

	count, err := i.db.ReplaceCatalog(ctx, stations)
	if err != nil {
		return 0, fmt.Errorf("replacing catalog: %w", err)
	}

	i.logger.Info("catalog imported", "stations", count)
	return count, nil
}

// Parse reads the dataset and returns all valid stations. Malformed rows are
// dropped and logged; they never abort the batch. Returns ErrNoValidRows when
// nothing usable remains.
func Parse(r io.Reader, logger station.Logger) ([]station.Station, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrNoValidRows
	}

	cols := headerIndex(records[0])

	stations := make([]station.Station, 0, len(records)-1)
	dropped := 0
	for n, record := range records[1:] {
		st, err := parseRow(cols, record)
		if err != nil {
			dropped++
			logger.Debug("dropping dataset row", "row", n+2, "error", err)
			continue
		}
		stations = append(stations, st)
	}

	if dropped > 0 {
		logger.Warn("dataset rows dropped", "dropped", dropped, "kept", len(stations))
	}
	if len(stations) == 0 {
		return nil, ErrNoValidRows
	}

	return stations, nil
}

// detectDelimiter picks ';' or ',' based on the header line. The enrichment
// pipeline has produced both over time.
func detectDelimiter(data []byte) rune {
	header := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		header = data[:idx]
	}
	if bytes.Count(header, []byte{';'}) > bytes.Count(header, []byte{','}) {
		return ';'
	}
	return ','
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func parseRow(cols map[string]int, record []string) (station.Station, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	id := field("uuid")
	if id == "" {
		return station.Station{}, errors.New("missing uuid")
	}

	name := field("name")
	if name == "" {
		return station.Station{}, errors.New("missing name")
	}

	priceClass, err := strconv.Atoi(field("category"))
	if err != nil || priceClass < 1 || priceClass > 7 {
		return station.Station{}, fmt.Errorf("invalid price class %q", field("category"))
	}

	state := field("federal_state")
	if state == "" {
		state = "Unknown"
	}

	st := station.Station{
		ID:            id,
		Name:          name,
		PriceClass:    priceClass,
		PointValue:    station.PointsForPriceClass(priceClass),
		State:         state,
		StationNumber: field("station_number"),
		EVANumber:     field("eva_number"),
		PriceSmall:    field("price_small"),
		PriceLarge:    field("price_large"),
		Longitude:     parseFloat(field("longitude")),
		Latitude:      parseFloat(field("latitude")),
		City:          field("city"),
		Zipcode:       field("zipcode"),
		Street:        field("street"),
		Verbund:       field("verbund"),
		OperatorShort: field("aufgabentraeger_shortname"),
		OperatorName:  field("aufgabentraeger_name"),
		ProductLine:   field("productline"),
		Segment:       field("segment"),
		HasParking:    field("hasparking") == "true",
		HasWifi:       field("haswifi") == "true",
		HasDBLounge:   field("hasdblounge") == "true",
	}

	// The enriched dataset carries an explicit main-station column; older
	// exports rely on the name convention.
	if _, ok := cols["ismainstation"]; ok {
		st.IsMainStation = field("ismainstation") == "true"
	} else {
		st.IsMainStation = isMainStationName(name)
	}

	return st, nil
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func isMainStationName(name string) bool {
	return strings.Contains(name, "Hbf") ||
		strings.Contains(name, "hbf") ||
		strings.Contains(name, "Hauptbahnhof") ||
		strings.Contains(name, "hauptbahnhof")
}
