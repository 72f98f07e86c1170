package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const jsonCatalog = `[
  {
    "id": "x1",
    "museum": "Третьяковская галерея",
    "title": "Импрессионисты",
    "description": "Живопись конца XIX века.",
    "start_date": "2026-06-01",
    "end_date": "2026-12-31",
    "tags": ["живопись", "история"],
    "accessibility": ["пандусы"],
    "audience": ["взрослые"],
    "location": "Лаврушинский переулок, 10"
  }
]`

func TestLoadJSON(t *testing.T) {
	items, err := LoadJSON(strings.NewReader(jsonCatalog))
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	e := items[0]
	if e.ID != "x1" || e.Title != "Импрессионисты" {
		t.Fatalf("unexpected record: %+v", e)
	}
	if e.StartDate.String() != "2026-06-01" || e.EndDate.String() != "2026-12-31" {
		t.Fatalf("dates = %s..%s", e.StartDate, e.EndDate)
	}
	if len(e.Tags) != 2 || e.Tags[0] != "живопись" {
		t.Fatalf("tags = %v", e.Tags)
	}
}

func TestLoadCSV(t *testing.T) {
	csvData := "id,museum,title,description,start_date,end_date,tags,accessibility,audience,location\n" +
		"x1,Пушкинский музей,Фотопортрет,Выставка фотографии,2026-06-01,2026-12-31,фотография; история,пандусы; лифт,взрослые; семья,\"Волхонка, 12\"\n" +
		"x2,Музей космонавтики,Космос,Про космос,,,космос,,,\n"

	items, err := LoadCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	first := items[0]
	if got := first.Tags; len(got) != 2 || got[0] != "фотография" || got[1] != "история" {
		t.Fatalf("tags = %v, want semicolon split", got)
	}
	if got := first.Accessibility; len(got) != 2 || got[1] != "лифт" {
		t.Fatalf("accessibility = %v", got)
	}
	if first.Location != "Волхонка, 12" {
		t.Fatalf("location = %q", first.Location)
	}

	second := items[1]
	if !second.StartDate.IsZero() || !second.EndDate.IsZero() {
		t.Fatalf("empty dates should stay open-ended: %+v", second)
	}
	if len(second.Tags) != 1 || second.Tags[0] != "космос" {
		t.Fatalf("tags = %v", second.Tags)
	}
	if second.Accessibility != nil {
		t.Fatalf("empty accessibility should stay nil: %v", second.Accessibility)
	}
}

func TestLoadCSVMissingColumn(t *testing.T) {
	csvData := "id,title\nx1,t\n"
	if _, err := LoadCSV(strings.NewReader(csvData)); err == nil {
		t.Fatal("want error for incomplete header")
	}
}

func TestLoadCSVBadDate(t *testing.T) {
	csvData := "id,museum,title,description,start_date,end_date,tags,accessibility,audience,location\n" +
		"x1,m,t,d,01.06.2026,,,,,\n"
	if _, err := LoadCSV(strings.NewReader(csvData)); err == nil {
		t.Fatal("want error for bad date format")
	}
}

const htmlListing = `<!DOCTYPE html>
<html><body>
<h1>Афиша</h1>
<article class="exhibition" data-id="web-1">
  <h2 class="title">Скульптура модерна</h2>
  <span class="museum">Музей декоративного искусства</span>
  <p class="description">Пластика начала XX века.</p>
  <time class="start" datetime="2026-07-01"></time>
  <time class="end" datetime="2027-01-15"></time>
  <span class="tags">скульптура; история</span>
  <span class="accessibility">лифт</span>
  <span class="audience">взрослые; пожилые</span>
  <span class="location">Delegatskaya, 3</span>
</article>
<article class="exhibition" data-id="web-2">
  <h2 class="title">Без дат</h2>
</article>
<div class="advert">не выставка</div>
</body></html>`

func TestLoadHTML(t *testing.T) {
	items, err := LoadHTML(strings.NewReader(htmlListing))
	if err != nil {
		t.Fatalf("LoadHTML: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 article blocks", len(items))
	}

	first := items[0]
	if first.ID != "web-1" || first.Title != "Скульптура модерна" {
		t.Fatalf("first = %+v", first)
	}
	if first.StartDate.String() != "2026-07-01" || first.EndDate.String() != "2027-01-15" {
		t.Fatalf("dates = %s..%s", first.StartDate, first.EndDate)
	}
	if len(first.Audience) != 2 || first.Audience[1] != "пожилые" {
		t.Fatalf("audience = %v", first.Audience)
	}

	second := items[1]
	if second.ID != "web-2" || !second.StartDate.IsZero() {
		t.Fatalf("second = %+v", second)
	}
}

func TestLoadFileDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, []byte(jsonCatalog), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(items) != 1 || items[0].ID != "x1" {
		t.Fatalf("items = %+v", items)
	}

	if _, err := LoadFile(filepath.Join(dir, "catalog.xml")); err == nil {
		t.Fatal("want error for unsupported extension")
	}
}

func TestFetchURLByContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.json":
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(jsonCatalog))
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(htmlListing))
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items, err := FetchURL(ctx, server.URL+"/feed.json")
	if err != nil {
		t.Fatalf("FetchURL json: %v", err)
	}
	if len(items) != 1 || items[0].ID != "x1" {
		t.Fatalf("json items = %+v", items)
	}

	items, err = FetchURL(ctx, server.URL+"/afisha")
	if err != nil {
		t.Fatalf("FetchURL html: %v", err)
	}
	if len(items) != 2 || items[0].ID != "web-1" {
		t.Fatalf("html items = %+v", items)
	}
}
