package robotapi

import (
	"encoding/json"
	"testing"
)

func TestPosition_JSON(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(PositionSet{{Lat: 22.5, Lng: 114.25}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `[[22.5,114.25]]` {
		t.Errorf("Marshal = %s, want [[22.5,114.25]]", data)
	}

	var p Position
	if err := json.Unmarshal([]byte(`[1.5,2.5]`), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Lat != 1.5 || p.Lng != 2.5 {
		t.Errorf("Unmarshal = %+v, want {1.5 2.5}", p)
	}
}

func TestPosition_UnmarshalRejectsWrongArity(t *testing.T) {
	t.Parallel()
	for _, in := range []string{`[]`, `[1]`, `[1,2,3]`, `{"lat":1}`} {
		var p Position
		if err := json.Unmarshal([]byte(in), &p); err == nil {
			t.Errorf("Unmarshal(%s) expected error", in)
		}
	}
}

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      *HTTPError
		expected string
	}{
		{"body wins", &HTTPError{StatusCode: 400, Body: "bad meters"}, "HTTP 400: bad meters"},
		{"status text fallback", &HTTPError{StatusCode: 500}, "HTTP 500: Internal Server Error"},
		{"unknown status", &HTTPError{StatusCode: 599}, "HTTP 599: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPositionSet_CloneNil(t *testing.T) {
	t.Parallel()
	var s PositionSet
	c := s.Clone()
	if c == nil || len(c) != 0 {
		t.Errorf("Clone(nil) = %#v, want empty non-nil", c)
	}
}
