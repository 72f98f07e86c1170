package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// listSeparator splits multi-value CSV and HTML fields.
const listSeparator = ";"

// csvColumns is the required CSV header, in any order.
var csvColumns = []string{
	"id", "museum", "title", "description", "start_date", "end_date",
	"tags", "accessibility", "audience", "location",
}

// LoadFile reads a catalog file, detecting the format from the extension
// (.json, .csv, .html/.htm).
func LoadFile(path string) ([]Exhibition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	case ".csv":
		return LoadCSV(f)
	case ".html", ".htm":
		return LoadHTML(f)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(path))
	}
}

// LoadJSON decodes a JSON array of exhibitions.
func LoadJSON(r io.Reader) ([]Exhibition, error) {
	var items []Exhibition
	dec := json.NewDecoder(r)
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode catalog json: %w", err)
	}
	return items, nil
}

// LoadCSV decodes a headered CSV of exhibitions. Multi-value columns
// (tags, accessibility, audience) are separated by ";".
func LoadCSV(r io.Reader) ([]Exhibition, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range csvColumns {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv header misses column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var items []Exhibition
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		start, err := ParseDate(cell(row, "start_date"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad start_date: %w", line, err)
		}
		end, err := ParseDate(cell(row, "end_date"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad end_date: %w", line, err)
		}

		items = append(items, Exhibition{
			ID:            cell(row, "id"),
			Museum:        cell(row, "museum"),
			Title:         cell(row, "title"),
			Description:   cell(row, "description"),
			StartDate:     start,
			EndDate:       end,
			Tags:          SplitList(cell(row, "tags")),
			Accessibility: SplitList(cell(row, "accessibility")),
			Audience:      SplitList(cell(row, "audience")),
			Location:      cell(row, "location"),
		})
	}
	return items, nil
}

// LoadHTML scrapes a museum listing page. Each exhibition is an
// <article class="exhibition"> block with an ID in data-id and fields in
// class-named children; <time> elements carry dates in their datetime
// attribute.
func LoadHTML(r io.Reader) ([]Exhibition, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse catalog html: %w", err)
	}

	var items []Exhibition
	var parseErr error
	doc.Find("article.exhibition").EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := func(selector string) string {
			return strings.TrimSpace(s.Find(selector).First().Text())
		}
		datetime := func(selector string) (Date, error) {
			value := strings.TrimSpace(s.Find(selector).First().AttrOr("datetime", ""))
			return ParseDate(value)
		}

		start, err := datetime("time.start")
		if err != nil {
			parseErr = fmt.Errorf("exhibition block %d: bad start date: %w", i, err)
			return false
		}
		end, err := datetime("time.end")
		if err != nil {
			parseErr = fmt.Errorf("exhibition block %d: bad end date: %w", i, err)
			return false
		}

		items = append(items, Exhibition{
			ID:            strings.TrimSpace(s.AttrOr("data-id", "")),
			Museum:        text(".museum"),
			Title:         text(".title"),
			Description:   text(".description"),
			StartDate:     start,
			EndDate:       end,
			Tags:          SplitList(text(".tags")),
			Accessibility: SplitList(text(".accessibility")),
			Audience:      SplitList(text(".audience")),
			Location:      text(".location"),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return items, nil
}

// FetchURL downloads a catalog from an HTTP endpoint and decodes it by
// Content-Type: JSON and CSV feeds are decoded directly, anything else is
// treated as a listing page to scrape.
func FetchURL(ctx context.Context, url string) ([]Exhibition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: %s replied %d", url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		return LoadJSON(resp.Body)
	case strings.Contains(contentType, "text/csv"):
		return LoadCSV(resp.Body)
	default:
		return LoadHTML(resp.Body)
	}
}

// SplitList parses a ";"-separated multi-value cell, dropping blanks.
// CSV loading and index metadata share this separator.
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
