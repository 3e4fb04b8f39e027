package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/nilsmagnus/grib/griblib"

	"github.com/lox/gridprep/internal/cache"
	"github.com/lox/gridprep/internal/httputil"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/wind"
)

const (
	HRRRBaseURL = "https://noaa-hrrr-bdp-pds.s3.amazonaws.com"
	hrrrLevel   = "80 m above ground"
)

// Transport reads a byte range [start, end] of a remote file. A negative end
// reads to the end of the file.
type Transport interface {
	Get(ctx context.Context, path string, start, end int64) ([]byte, error)
}

// HTTPTransport reads from an HTTPS object store using Range requests.
type HTTPTransport struct {
	BaseURL string
	Fetcher *httputil.Fetcher
}

func (t *HTTPTransport) Get(ctx context.Context, p string, start, end int64) ([]byte, error) {
	var header http.Header
	if start > 0 || end >= 0 {
		r := fmt.Sprintf("bytes=%d-", start)
		if end >= 0 {
			r += strconv.FormatInt(end, 10)
		}
		header = http.Header{"Range": {r}}
	}
	resp, err := t.Fetcher.Get(ctx, strings.TrimSuffix(t.BaseURL, "/")+"/"+p, header)
	if httputil.IsStatus(err, http.StatusNotFound) || httputil.IsStatus(err, http.StatusForbidden) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FTPTransport reads from an FTP mirror, resuming transfers at the range
// offset.
type FTPTransport struct {
	Addr     string
	User     string
	Password string
	Root     string
}

func (t *FTPTransport) Get(ctx context.Context, p string, start, end int64) ([]byte, error) {
	conn, err := ftp.Dial(t.Addr, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(t.User, t.Password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	began := time.Now()
	resp, err := conn.RetrFrom(path.Join(t.Root, p), uint64(start))
	metrics.APILatency.WithLabelValues("hrrr-ftp").Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.APICallsTotal.WithLabelValues("hrrr-ftp", "error").Inc()
		var te *textproto.Error
		if errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()
	metrics.APICallsTotal.WithLabelValues("hrrr-ftp", "ok").Inc()

	var r io.Reader = resp
	if end >= 0 {
		r = io.LimitReader(resp, end-start+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// IndexEntry is one line of a GRIB2 .idx inventory.
type IndexEntry struct {
	Offset int64
	Var    string
	Level  string
}

// ParseIndex reads a wgrib2-style inventory:
// "71:50844856:d=2016022903:UGRD:80 m above ground:anl:".
func ParseIndex(b []byte) ([]IndexEntry, error) {
	var out []IndexEntry
	for i, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		f := strings.Split(line, ":")
		if len(f) < 5 {
			return nil, fmt.Errorf("index line %d: %q", i+1, line)
		}
		off, err := strconv.ParseInt(f[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index line %d: offset: %w", i+1, err)
		}
		out = append(out, IndexEntry{Offset: off, Var: f[3], Level: f[4]})
	}
	return out, nil
}

// FindRange returns the byte range of the first message matching variable
// and level. end is -1 when the message runs to the end of the file.
func FindRange(entries []IndexEntry, variable, level string) (start, end int64, ok bool) {
	for i, e := range entries {
		if e.Var != variable || e.Level != level {
			continue
		}
		end = -1
		for _, next := range entries[i+1:] {
			if next.Offset > e.Offset {
				end = next.Offset - 1
				break
			}
		}
		return e.Offset, end, true
	}
	return 0, 0, false
}

func decodeGRIB(data []byte) ([]float64, error) {
	msgs, err := griblib.ReadMessages(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode grib: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("decode grib: no messages")
	}
	return msgs[0].Data(), nil
}

// HRRR reads 80 m wind components from HRRR analysis files, downloading only
// the needed messages and caching them on disk. It implements wind.Source.
type HRRR struct {
	transport Transport
	cache     *cache.Cache
	rec       *Recorder
	decode    func([]byte) ([]float64, error)
}

func NewHRRR(t Transport, c *cache.Cache, rec *Recorder) *HRRR {
	return &HRRR{transport: t, cache: c, rec: rec, decode: decodeGRIB}
}

func hrrrPath(hour time.Time) string {
	hour = hour.UTC()
	return fmt.Sprintf("hrrr.%s/conus/hrrr.t%02dz.wrfsfcf00.grib2", hour.Format("20060102"), hour.Hour())
}

func (h *HRRR) Wind(ctx context.Context, hour time.Time) ([]float64, []float64, error) {
	var index []IndexEntry
	fields := make([][]float64, 2)
	for i, variable := range []string{"UGRD", "VGRD"} {
		key := fmt.Sprintf("hrrr/%s/%02d/%s80.grib2", hour.UTC().Format("20060102"), hour.UTC().Hour(), strings.ToLower(variable))
		data, ok := h.cache.Get(key)
		if !ok {
			if index == nil {
				var err error
				if index, err = h.index(ctx, hour); err != nil {
					return nil, nil, err
				}
			}
			start, end, found := FindRange(index, variable, hrrrLevel)
			if !found {
				return nil, nil, fmt.Errorf("hrrr %s: %s not in index: %w", hour.Format(time.RFC3339), variable, wind.ErrMissingHour)
			}
			var err error
			if data, err = h.fetch(ctx, hrrrPath(hour), start, end); err != nil {
				return nil, nil, err
			}
			if err := h.cache.Set(key, data); err != nil {
				return nil, nil, err
			}
		}
		var err error
		if fields[i], err = h.decode(data); err != nil {
			return nil, nil, fmt.Errorf("hrrr %s %s: %w", hour.Format(time.RFC3339), variable, err)
		}
	}
	u, v := fields[0], fields[1]
	if len(u) != len(v) {
		return nil, nil, fmt.Errorf("hrrr %s: U has %d points, V has %d", hour.Format(time.RFC3339), len(u), len(v))
	}
	if flags := ValidateWind(u, v); len(flags) > 0 {
		log.Printf("hrrr: %s flagged %v", hour.Format(time.RFC3339), flags)
	}
	return u, v, nil
}

func (h *HRRR) index(ctx context.Context, hour time.Time) ([]IndexEntry, error) {
	b, err := h.fetch(ctx, hrrrPath(hour)+".idx", 0, -1)
	if err != nil {
		return nil, err
	}
	return ParseIndex(b)
}

// fetch maps absent or empty files to wind.ErrMissingHour.
func (h *HRRR) fetch(ctx context.Context, p string, start, end int64) ([]byte, error) {
	run := h.rec.start(ctx, "hrrr", path.Base(p), fmt.Sprintf("%s@%d-%d", p, start, end))
	data, err := h.transport.Get(ctx, p, start, end)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("%s: empty", p)
		h.rec.finish(ctx, run, 0, 0, err)
		return nil, fmt.Errorf("%w: %v", wind.ErrMissingHour, err)
	}
	h.rec.finish(ctx, run, len(data), 0, err)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", wind.ErrMissingHour, err)
	}
	if err != nil {
		return nil, fmt.Errorf("hrrr: %w", err)
	}
	return data, nil
}
