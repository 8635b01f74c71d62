// Package normals loads per-day or monthly climate normals from CSV, either
// from a local file or an FTP server.
package normals

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/wandistats/internal/models"
)

var header = []string{"month", "day", "temp_high", "temp_low", "temp_mean", "rain"}

// ErrBadHeader is returned when the first CSV row is not the expected header.
var ErrBadHeader = errors.New("normals: unexpected csv header")

// Parse reads normals CSV. Empty cells are treated as missing values.
func Parse(r io.Reader) ([]models.WeatherAverage, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range first {
		if !strings.EqualFold(strings.TrimSpace(col), header[i]) {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i+1, col, header[i])
		}
	}

	var avgs []models.WeatherAverage
	seen := make(map[[2]int]bool)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)

		a, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		key := [2]int{int(a.Month), a.Day}
		if seen[key] {
			return nil, fmt.Errorf("line %d: duplicate entry for %02d-%02d", line, a.Month, a.Day)
		}
		seen[key] = true
		avgs = append(avgs, a)
	}
	return avgs, nil
}

func parseRow(row []string) (models.WeatherAverage, error) {
	var a models.WeatherAverage

	month, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil || month < 1 || month > 12 {
		return a, fmt.Errorf("invalid month %q", row[0])
	}
	// An empty or zero day marks a monthly normal.
	day := 0
	if cell := strings.TrimSpace(row[1]); cell != "" {
		day, err = strconv.Atoi(cell)
		// 2000 is a leap year, so Feb 29 is accepted.
		if err != nil || day < 0 || day > time.Date(2000, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day() {
			return a, fmt.Errorf("invalid day %q for month %d", row[1], month)
		}
	}
	a.Month, a.Day = time.Month(month), day

	fields := []*sql.NullFloat64{&a.TempHigh, &a.TempLow, &a.TempMean, &a.Rain}
	for i, f := range fields {
		cell := strings.TrimSpace(row[i+2])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return a, fmt.Errorf("invalid %s %q", header[i+2], cell)
		}
		*f = sql.NullFloat64{Float64: v, Valid: true}
	}
	return a, nil
}

// Open returns a reader over source, a local path or an ftp:// URL. FTP
// credentials default to anonymous.
func Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !strings.HasPrefix(source, "ftp://") {
		return os.Open(source)
	}

	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}
	body, err := fetchFTP(ctx, u)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// Load opens and parses source.
func Load(ctx context.Context, source string) ([]models.WeatherAverage, error) {
	r, err := Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Parse(r)
}

func ftpAddr(u *url.URL) (addr, user, pass string) {
	addr = u.Host
	if u.Port() == "" {
		addr += ":21"
	}
	user, pass = "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	return addr, user, pass
}

func fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	addr, user, pass := ftpAddr(u)

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
