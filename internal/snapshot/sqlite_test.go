package snapshot

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"pharmalert/internal/rules"
	"pharmalert/pkg/logx"
)

func seedPOSDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pharmacy.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			name TEXT,
			quantity INTEGER,
			min_stock_level INTEGER,
			expiry_date TEXT
		)`,
		`CREATE TABLE sales (
			id TEXT PRIMARY KEY,
			transaction_number TEXT,
			total_amount REAL,
			created_at TEXT
		)`,
		`INSERT INTO products VALUES
			('1', 'Paracetamol 500mg', 0, 10, NULL),
			('2', 'Amoxicillin 250mg', 40, 10, '2024-06-15'),
			('3', 'Vitamin C', 25, NULL, 'garbage-date')`,
		`INSERT INTO sales VALUES
			('101', 'TXN-101', 1500.5, '2024-06-01T10:00:00Z'),
			('102', 'TXN-102', 25000, '2024-06-01T11:00:00Z'),
			('103', NULL, 80, '2024-06-01 09:30:00')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return path
}

func TestSQLiteProviderProducts(t *testing.T) {
	t.Parallel()
	path := seedPOSDatabase(t)

	p, err := OpenSQLite(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer p.Close()

	products, err := p.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("got %d products", len(products))
	}

	byID := map[string]rules.ProductState{}
	for _, ps := range products {
		byID[ps.ID] = ps
	}

	p1 := byID["1"]
	if p1.Quantity != 0 || p1.ReorderThreshold != 10 || p1.ExpiryDate != nil {
		t.Fatalf("unexpected product: %+v", p1)
	}

	p2 := byID["2"]
	if p2.ExpiryDate == nil || !p2.ExpiryDate.Equal(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bare date not parsed: %+v", p2.ExpiryDate)
	}

	p3 := byID["3"]
	if p3.ReorderThreshold != 0 {
		t.Fatalf("NULL threshold should read as 0, got %d", p3.ReorderThreshold)
	}
	if p3.ExpiryDate != nil {
		t.Fatalf("unparseable date should read as nil, got %v", p3.ExpiryDate)
	}
}

func TestSQLiteProviderRecentSales(t *testing.T) {
	t.Parallel()
	path := seedPOSDatabase(t)

	p, err := OpenSQLite(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer p.Close()

	sales, err := p.RecentSales(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentSales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("got %d sales, want 2", len(sales))
	}
	// Most recent first.
	if sales[0].ID != "102" || sales[1].ID != "101" {
		t.Fatalf("unexpected order: %s, %s", sales[0].ID, sales[1].ID)
	}
	if sales[0].Amount != 25000 || sales[0].Reference != "TXN-102" {
		t.Fatalf("unexpected sale: %+v", sales[0])
	}
	if sales[0].OccurredAt.IsZero() {
		t.Fatal("sale timestamp not parsed")
	}
}

func TestSQLiteProviderEvents(t *testing.T) {
	t.Parallel()
	path := seedPOSDatabase(t)

	events := []rules.SystemEvent{{Slug: "backup-complete", Title: "Backup Completed"}}
	p, err := OpenSQLite(Config{Path: path, Events: events}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer p.Close()

	got, err := p.SystemEvents(context.Background())
	if err != nil {
		t.Fatalf("SystemEvents: %v", err)
	}
	if len(got) != 1 || got[0].Slug != "backup-complete" {
		t.Fatalf("unexpected events: %+v", got)
	}

	p.SetEvents(nil)
	got, err = p.SystemEvents(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("SetEvents not applied: %+v, %v", got, err)
	}
}

func TestFetchAssemblesSnapshot(t *testing.T) {
	t.Parallel()
	path := seedPOSDatabase(t)

	p, err := OpenSQLite(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer p.Close()

	snap, err := Fetch(context.Background(), p, 5)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(snap.Products) != 3 || len(snap.Sales) != 3 {
		t.Fatalf("products=%d sales=%d", len(snap.Products), len(snap.Sales))
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in string
		ok bool
	}{
		{"2024-06-15", true},
		{"2024-06-15 13:45:00", true},
		{"2024-06-15T13:45:00Z", true},
		{"2024-06-15T13:45:00.123456Z", true},
		{"", false},
		{"soon", false},
	}
	for _, tt := range tests {
		if _, ok := parseDate(tt.in); ok != tt.ok {
			t.Fatalf("parseDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}
