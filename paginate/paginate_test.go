package paginate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-admin-search/internal/dbopen"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

func openWidgets(t *testing.T, n int) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := dbopen.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := dbopen.CreateSchema(ctx, db, []any{(*widget)(nil)}, nil); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if n == 0 {
		return db
	}

	rows := make([]widget, n)
	for i := range rows {
		rows[i] = widget{Name: "w"}
	}
	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return db
}

func widgetQuery(db *bun.DB) *bun.SelectQuery {
	return db.NewSelect().Model((*widget)(nil)).OrderExpr("w.id ASC")
}

func TestRequestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Request
		want Request
	}{
		{"zero value", Request{}, Request{Page: 1, Limit: 25}},
		{"negative page", Request{Page: -3, Limit: 10}, Request{Page: 1, Limit: 10}},
		{"limit above max", Request{Page: 2, Limit: 1000}, Request{Page: 2, Limit: 100}},
		{"negative limit", Request{Page: 1, Limit: -1}, Request{Page: 1, Limit: 25}},
		{"countless kept", Request{Page: 4, Limit: 5, Countless: true}, Request{Page: 4, Limit: 5, Countless: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(DefaultLimit, MaxLimit); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequestOffset(t *testing.T) {
	if got := (Request{Page: 3, Limit: 20}).Offset(); got != 40 {
		t.Errorf("Offset() = %d, want 40", got)
	}
}

func TestQueryCountless(t *testing.T) {
	tests := []struct {
		name        string
		rows        int
		req         Request
		wantRecords int
		wantHasMore bool
		wantTotal   int
		totalKnown  bool
	}{
		{"exactly limit rows", 5, Request{Page: 1, Limit: 5}, 5, false, 5, true},
		{"one more than limit", 6, Request{Page: 1, Limit: 5}, 5, true, 0, false},
		{"single record", 1, Request{Page: 1, Limit: 5}, 1, false, 1, true},
		{"empty first page", 0, Request{Page: 1, Limit: 5}, 0, false, 0, true},
		{"partial last page", 12, Request{Page: 3, Limit: 5}, 2, false, 12, true},
		{"past the end", 5, Request{Page: 2, Limit: 5}, 0, false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openWidgets(t, tt.rows)
			req := tt.req
			req.Countless = true

			rs, err := Query[widget](context.Background(), widgetQuery(db), req)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}

			if len(rs.Records) != tt.wantRecords {
				t.Errorf("records = %d, want %d", len(rs.Records), tt.wantRecords)
			}
			if rs.HasMore != tt.wantHasMore {
				t.Errorf("HasMore = %v, want %v", rs.HasMore, tt.wantHasMore)
			}
			if rs.Pages != nil {
				t.Errorf("Pages = %d, want nil in countless mode", *rs.Pages)
			}
			total, known := rs.ExactCount()
			if known != tt.totalKnown {
				t.Fatalf("total known = %v, want %v", known, tt.totalKnown)
			}
			if known && total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}
}

func TestQueryCountlessKeepsOrder(t *testing.T) {
	db := openWidgets(t, 7)

	rs, err := Query[widget](context.Background(), widgetQuery(db), Request{Page: 2, Limit: 3, Countless: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	want := []int64{4, 5, 6}
	if len(rs.Records) != len(want) {
		t.Fatalf("records = %d, want %d", len(rs.Records), len(want))
	}
	for i, w := range rs.Records {
		if w.ID != want[i] {
			t.Errorf("record %d id = %d, want %d", i, w.ID, want[i])
		}
	}
	if !rs.HasMore {
		t.Error("expected HasMore on page 2 of 7 rows")
	}
}

func TestQueryCounted(t *testing.T) {
	tests := []struct {
		name        string
		rows        int
		req         Request
		wantRecords int
		wantPages   int
		wantHasMore bool
	}{
		{"first of three", 12, Request{Page: 1, Limit: 5}, 5, 3, true},
		{"last partial", 12, Request{Page: 3, Limit: 5}, 2, 3, false},
		{"beyond last", 12, Request{Page: 4, Limit: 5}, 0, 3, false},
		{"empty table", 0, Request{Page: 1, Limit: 5}, 0, 1, false},
		{"exact multiple", 10, Request{Page: 2, Limit: 5}, 5, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openWidgets(t, tt.rows)

			rs, err := Query[widget](context.Background(), widgetQuery(db), tt.req)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(rs.Records) != tt.wantRecords {
				t.Errorf("records = %d, want %d", len(rs.Records), tt.wantRecords)
			}
			if rs.Pages == nil || *rs.Pages != tt.wantPages {
				t.Errorf("Pages = %v, want %d", rs.Pages, tt.wantPages)
			}
			if rs.HasMore != tt.wantHasMore {
				t.Errorf("HasMore = %v, want %v", rs.HasMore, tt.wantHasMore)
			}
			if total, ok := rs.ExactCount(); !ok || total != tt.rows {
				t.Errorf("ExactCount() = %d, %v; want %d, true", total, ok, tt.rows)
			}
		})
	}
}

func TestQueryRejectsUnnormalizedRequest(t *testing.T) {
	db := openWidgets(t, 0)
	if _, err := Query[widget](context.Background(), widgetQuery(db), Request{}); err == nil {
		t.Fatal("expected an error for a zero request")
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	rs := Slice(items, Request{Page: 2, Limit: 3})
	if len(rs.Records) != 3 || rs.Records[0] != 4 || rs.Records[2] != 6 {
		t.Errorf("Records = %v, want [4 5 6]", rs.Records)
	}
	if *rs.Pages != 3 || !rs.HasMore {
		t.Errorf("Pages = %d HasMore = %v, want 3 true", *rs.Pages, rs.HasMore)
	}

	rs = Slice(items, Request{Page: 5, Limit: 3})
	if len(rs.Records) != 0 || rs.HasMore {
		t.Errorf("page past the end = %v has_more=%v, want empty and false", rs.Records, rs.HasMore)
	}

	rs.Records = append(rs.Records, 99)
	if items[len(items)-1] != 7 {
		t.Error("Slice must not alias the input")
	}
}

func TestEmpty(t *testing.T) {
	rs := Empty[int](Request{Page: 1, Limit: 10, Countless: true})
	if rs.Pages != nil {
		t.Error("countless empty page should have unknown pages")
	}
	if total, ok := rs.ExactCount(); !ok || total != 0 {
		t.Errorf("ExactCount() = %d, %v; want 0, true", total, ok)
	}
	if rs.Records == nil {
		t.Error("Records should be an empty slice, not nil")
	}

	rs = Empty[int](Request{Page: 1, Limit: 10})
	if rs.Pages == nil || *rs.Pages != 1 {
		t.Errorf("counted empty page Pages = %v, want 1", rs.Pages)
	}
}

func TestMetaJSON(t *testing.T) {
	pages := 4
	counted := ResultSet[int]{Page: 2, Pages: &pages, HasMore: true}
	countless := ResultSet[int]{Page: 1, HasMore: false}

	tests := []struct {
		name string
		meta Meta
		want string
	}{
		{"counted", counted.Meta(), `{"page":2,"pages":4,"has_more":true}`},
		{"countless", countless.Meta(), `{"page":1,"pages":null,"has_more":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.meta)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Meta JSON = %s, want %s", got, tt.want)
			}
		})
	}
}
