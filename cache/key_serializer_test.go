package cache

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

type countryCode string

type money struct{ cents int64 }

func (m money) String() string { return "money:" + strconv.FormatInt(m.cents, 10) }

type reportRequest struct {
	Country countryCode
	Start   time.Time
	End     *time.Time
	Amount  *money
	note    string
}

func TestDefaultKeySerializer_BasicTypes(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name   string
		method string
		args   []any
		want   string
	}{
		{
			name:   "no args",
			method: "UnreviewedUsers",
			want:   "UnreviewedUsers",
		},
		{
			name:   "single int",
			method: "SellerIDByEmail",
			args:   []any{42},
			want:   joinWithSeparator("SellerIDByEmail", "42"),
		},
		{
			name:   "multiple basic types",
			method: "Search",
			args:   []any{1, "hello", true, 3.14},
			want:   joinWithSeparator("Search", "1", "hello", "true", "3.14"),
		},
		{
			name:   "nil and nil pointer",
			method: "Search",
			args:   []any{nil, (*string)(nil)},
			want:   joinWithSeparator("Search", "nil", "nil"),
		},
		{
			name:   "pointer is dereferenced",
			method: "Search",
			args:   []any{ptr("buyer@example.com")},
			want:   joinWithSeparator("Search", "buyer@example.com"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.method, tt.args...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_TimesAreNormalizedToUTC(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	utc := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	offset := utc.In(time.FixedZone("EST", -5*60*60))

	a := serializer.SerializeKey("Report", utc)
	b := serializer.SerializeKey("Report", offset)
	if a != b {
		t.Errorf("expected same key for the same instant, got %q and %q", a, b)
	}
	if a != joinWithSeparator("Report", "2024-03-01T12:00:00Z") {
		t.Errorf("unexpected key %q", a)
	}
}

func TestDefaultKeySerializer_Structs(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	req := reportRequest{Country: "US", Start: start, Amount: &money{cents: 1000}, note: "ignored"}

	got := serializer.SerializeKey("SalesReport", req)
	want := joinWithSeparator("SalesReport", "struct:{Country:US,Start:2024-01-01T00:00:00Z,Amount:money:1000}")
	if got != want {
		t.Errorf("SerializeKey() = %v, want %v", got, want)
	}

	// Structs with the same values produce the same key.
	again := serializer.SerializeKey("SalesReport", reportRequest{Country: "US", Start: start, Amount: &money{cents: 1000}})
	if got != again {
		t.Errorf("expected deterministic key, got %q and %q", got, again)
	}
}

func TestDefaultKeySerializer_Collections(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name string
		arg  any
		want string
	}{
		{name: "slice", arg: []string{"visa", "amex"}, want: "slice[2]:{visa,amex}"},
		{name: "nil slice", arg: []int(nil), want: "slice:nil"},
		{name: "array", arg: [2]int{1, 2}, want: "array[2]:{1,2}"},
		{name: "map sorted", arg: map[string]int{"b": 2, "a": 1}, want: "map[2]:{a=1,b=2}"},
		{name: "nil map", arg: map[string]int(nil), want: "map:nil"},
		{name: "func unsupported", arg: func() {}, want: "unsupported:func()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey("M", tt.arg)
			if got != joinWithSeparator("M", tt.want) {
				t.Errorf("SerializeKey() = %v, want %v", got, joinWithSeparator("M", tt.want))
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }
