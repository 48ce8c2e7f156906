package domain

import (
	"errors"
	"testing"
)

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Amsterdam", "amsterdam"},
		{"Den Haag", "den_haag"},
		{"  New York  ", "new_york"},
		{"São Paulo", "s_o_paulo"},
		{"United Kingdom (UK)", "united_kingdom_uk"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateAirport(t *testing.T) {
	tests := []struct {
		name string
		a    Airport
		want error
	}{
		{"valid", Airport{Code: "ams", Name: "Schiphol"}, nil},
		{"valid coords", Airport{Code: "CDG", HasCoords: true, Latitude: 49.0, Longitude: 2.5}, nil},
		{"missing code", Airport{Name: "Nowhere"}, ErrMissingCode},
		{"long code", Airport{Code: "EHAM"}, ErrInvalidCode},
		{"bad coords", Airport{Code: "LHR", HasCoords: true, Latitude: 95}, ErrInvalidCoordinate},
		{"coords ignored without flag", Airport{Code: "LHR", Latitude: 95}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAirport(tt.a)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateFlight(t *testing.T) {
	ok := Flight{ID: "20240501+KL+1001", FlightNumber: "KL1001", Origin: "AMS", Destination: "LHR"}
	if err := ValidateFlight(ok); err != nil {
		t.Fatalf("valid flight rejected: %v", err)
	}

	tests := []struct {
		name  string
		edit  func(*Flight)
		field string
		want  error
	}{
		{"no id", func(f *Flight) { f.ID = "" }, "id", ErrMissingField},
		{"no number", func(f *Flight) { f.FlightNumber = " " }, "flight_number", ErrMissingField},
		{"no origin", func(f *Flight) { f.Origin = "" }, "origin", ErrMissingCode},
		{"bad destination", func(f *Flight) { f.Destination = "LONDON" }, "destination", ErrInvalidCode},
		{"same endpoints", func(f *Flight) { f.Destination = "ams" }, "destination", ErrSameEndpoints},
		{"negative delay", func(f *Flight) { f.DelayMinutes = -3 }, "delay_minutes", ErrNegative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ok
			tt.edit(&f)
			err := ValidateFlight(f)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("field = %v, want %s", ve, tt.field)
			}
		})
	}
}

func TestValidateDelayRecord(t *testing.T) {
	good := DelayRecord{ICAO: "EGLL", IATA: "LHR", Flights: 10, Passengers: 100, AvgATCDelay: 1.5}
	if err := ValidateDelayRecord(good); err != nil {
		t.Fatal(err)
	}
	bad := []DelayRecord{
		{ICAO: "LHR"},
		{ICAO: "EGLL", IATA: "LONDON"},
		{ICAO: "EGLL", Flights: -1},
		{ICAO: "EGLL", Passengers: -1},
		{ICAO: "EGLL", AvgATCDelay: -0.1},
		{ICAO: "EGLL", HasCoords: true, Longitude: 200},
	}
	for i, r := range bad {
		if ValidateDelayRecord(r) == nil {
			t.Errorf("case %d: expected error for %+v", i, r)
		}
	}
}

func TestValidateDestinationAndAirline(t *testing.T) {
	if err := ValidateDestination(Destination{IATA: "BCN"}); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(ValidateDestination(Destination{}), ErrMissingCode) {
		t.Fatal("missing iata must fail")
	}
	if !errors.Is(ValidateDestination(Destination{IATA: "B"}), ErrInvalidCode) {
		t.Fatal("short iata must fail")
	}
	if !errors.Is(ValidateAirline(Airline{}), ErrMissingField) {
		t.Fatal("airline without iata must fail")
	}
}

func TestValidationErrorFormat(t *testing.T) {
	err := NewValidationError("code", "XX", ErrInvalidCode)
	want := `validation: invalid airport code: code (value="XX")`
	if err.Error() != want {
		t.Fatalf("got %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatal("unwrap failed")
	}
}

func TestIsEU(t *testing.T) {
	if !IsEU("S") || !IsEU("E") || IsEU("N") || IsEU("") {
		t.Fatal("IsEU flags wrong")
	}
}
