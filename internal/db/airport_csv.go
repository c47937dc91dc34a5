package db

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Columns read from an OurAirports-style airports.csv.
var requiredCSVColumns = []string{"ident", "name", "latitude_deg", "longitude_deg"}

// ParseAirportsCSV reads airport rows with a header line. The ICAO code is
// taken from icao_code, then gps_code, then ident. Closed airports and rows
// with unparseable coordinates are skipped and counted.
func ParseAirportsCSV(r io.Reader) (airports []Airport, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredCSVColumns {
		if _, ok := cols[name]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", name)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}

		if field(rec, "type") == "closed" {
			skipped++
			continue
		}

		icao := field(rec, "icao_code")
		if icao == "" {
			icao = field(rec, "gps_code")
		}
		if icao == "" {
			icao = field(rec, "ident")
		}

		lat, latErr := strconv.ParseFloat(field(rec, "latitude_deg"), 64)
		lon, lonErr := strconv.ParseFloat(field(rec, "longitude_deg"), 64)
		if latErr != nil || lonErr != nil {
			skipped++
			continue
		}

		elevation, _ := strconv.Atoi(field(rec, "elevation_ft"))

		a := Airport{
			ICAO:        strings.ToUpper(icao),
			IATA:        strings.ToUpper(field(rec, "iata_code")),
			Name:        field(rec, "name"),
			City:        field(rec, "municipality"),
			Country:     field(rec, "iso_country"),
			Latitude:    lat,
			Longitude:   lon,
			ElevationFt: elevation,
		}
		if a.Validate() != nil {
			skipped++
			continue
		}
		airports = append(airports, a)
	}

	return airports, skipped, nil
}
