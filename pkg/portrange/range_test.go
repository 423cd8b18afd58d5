// pkg/portrange/range_test.go
// Unit tests for port ranges

package portrange

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    Range
		wantErr bool
	}{
		{name: "default range", spec: "1-9999", want: Range{First: 1, Last: 9999}},
		{name: "single port", spec: "22", want: Range{First: 22, Last: 22}},
		{name: "whitespace", spec: " 80 - 90 ", want: Range{First: 80, Last: 90}},
		{name: "full range", spec: "1-65535", want: Range{First: 1, Last: 65535}},
		{name: "empty", spec: "", wantErr: true},
		{name: "reversed", spec: "100-10", wantErr: true},
		{name: "zero", spec: "0-10", wantErr: true},
		{name: "too large", spec: "1-70000", wantErr: true},
		{name: "garbage", spec: "ssh", wantErr: true},
		{name: "garbage upper", spec: "1-x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestRange_CountContains(t *testing.T) {
	r := Default
	if r.Count() != 9999 {
		t.Errorf("Count() = %d, want 9999", r.Count())
	}
	if !r.Contains(1) || !r.Contains(9999) {
		t.Error("Contains() should include both bounds")
	}
	if r.Contains(0) || r.Contains(10000) {
		t.Error("Contains() should exclude ports outside the bounds")
	}
	if r.String() != "1-9999" {
		t.Errorf("String() = %q, want 1-9999", r.String())
	}
}

func TestIterator_Next(t *testing.T) {
	tests := []struct {
		name      string
		r         Range
		wantCount int
		wantFirst int
		wantLast  int
	}{
		{name: "small range", r: Range{First: 20, Last: 25}, wantCount: 6, wantFirst: 20, wantLast: 25},
		{name: "single port", r: Range{First: 443, Last: 443}, wantCount: 1, wantFirst: 443, wantLast: 443},
		{name: "upper edge", r: Range{First: 65534, Last: 65535}, wantCount: 2, wantFirst: 65534, wantLast: 65535},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := tt.r.Iter()
			var got []int
			for {
				p, ok := it.Next()
				if !ok {
					break
				}
				got = append(got, p)
			}

			if len(got) != tt.wantCount {
				t.Fatalf("iterated %d ports, want %d", len(got), tt.wantCount)
			}
			if got[0] != tt.wantFirst || got[len(got)-1] != tt.wantLast {
				t.Errorf("first/last = %d/%d, want %d/%d", got[0], got[len(got)-1], tt.wantFirst, tt.wantLast)
			}
			for i := 1; i < len(got); i++ {
				if got[i] <= got[i-1] {
					t.Fatalf("iteration not ascending at %d: %v", i, got)
				}
			}
		})
	}
}
