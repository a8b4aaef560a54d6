package reportdb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/acoustic.report/internal/report"
)

// Run records one write to the store.
type Run struct {
	ID          string
	Mode        string
	Source      string
	First       time.Time
	Last        time.Time
	BinsWritten int
	CreatedAt   time.Time
}

// RunMeta describes the run performing a write.
type RunMeta struct {
	Mode   string
	Source string
}

// Attributes that may differ between appended runs.
var mutableAttributes = map[string]bool{"Software": true}

const depthTolerance = 1e-6

// WriteReport stores the bins of p in one transaction. Bins are keyed by
// time: a stored complete bin is never overwritten, a stored incomplete bin
// is replaced. Nothing is written when the layout of p differs from the
// stored report.
func (db *DB) WriteReport(ctx context.Context, p *report.Product, meta RunMeta) (*Run, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	run := &Run{
		ID:        uuid.New().String(),
		Mode:      meta.Mode,
		Source:    meta.Source,
		CreatedAt: db.clock.Now(),
	}
	err := db.retryOnBusy(func() error {
		run.BinsWritten, run.First, run.Last = 0, time.Time{}, time.Time{}
		return db.writeTx(ctx, p, run)
	})
	if err != nil {
		return nil, err
	}
	db.logf("run %s (%s) wrote %d of %d bins", run.ID, run.Mode, run.BinsWritten, len(p.Times))
	return run, nil
}

func (db *DB) writeTx(ctx context.Context, p *report.Product, run *Run) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = checkLayout(ctx, tx, p); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO report_runs (run_id, mode, source, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Mode, run.Source, run.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, t := range p.Times {
		ms := t.UnixMilli()
		var stored int
		switch err = tx.QueryRowContext(ctx, `SELECT valid FROM report_pings WHERE time_ms = ?`, ms).Scan(&stored); {
		case errors.Is(err, sql.ErrNoRows):
			err = nil
		case err != nil:
			return err
		case stored == 1:
			continue
		default:
			if _, err = tx.ExecContext(ctx, `DELETE FROM report_values WHERE time_ms = ?`, ms); err != nil {
				return err
			}
			if _, err = tx.ExecContext(ctx, `DELETE FROM report_pings WHERE time_ms = ?`, ms); err != nil {
				return err
			}
		}

		valid := 0
		if p.BinValid(i) {
			valid = 1
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO report_pings (
				time_ms, run_id, latitude, longitude, distance, bottom_depth, valid
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ms, run.ID, nullable(p.Latitude[i]), nullable(p.Longitude[i]),
			nullable(p.Distance[i]), nullable(p.BottomDepth[i]), valid); err != nil {
			return fmt.Errorf("insert bin %s: %w", t.Format(time.RFC3339), err)
		}
		for c, cat := range p.Categories {
			if _, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO report_values (time_ms, category, data) VALUES (?, ?, ?)`,
				ms, cat, db.encodeRow(p.Values[c], i)); err != nil {
				return fmt.Errorf("insert values %s category %d: %w", t.Format(time.RFC3339), cat, err)
			}
		}

		run.BinsWritten++
		if run.First.IsZero() {
			run.First = t
		}
		run.Last = t
	}

	var first, last interface{}
	if run.BinsWritten > 0 {
		first, last = run.First.UnixMilli(), run.Last.UnixMilli()
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE report_runs SET first_time_ms = ?, last_time_ms = ?, bins_written = ? WHERE run_id = ?`,
		first, last, run.BinsWritten, run.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// checkLayout stores the layout of p on first write and compares it with
// the stored layout afterwards.
func checkLayout(ctx context.Context, tx *sql.Tx, p *report.Product) error {
	stored := map[string]string{}
	rows, err := tx.QueryContext(ctx, `SELECT name, value FROM report_attributes`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			rows.Close()
			return err
		}
		stored[name] = value
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(stored) == 0 {
		return insertLayout(ctx, tx, p)
	}

	for _, kv := range p.Attributes.Pairs() {
		if mutableAttributes[kv[0]] {
			continue
		}
		if got, ok := stored[kv[0]]; !ok || got != kv[1] {
			return fmt.Errorf("%w: %s is %q, stored %q", ErrSchemaMismatch, kv[0], kv[1], got)
		}
	}

	cats, err := queryCategories(ctx, tx)
	if err != nil {
		return err
	}
	if len(cats) != len(p.Categories) {
		return fmt.Errorf("%w: categories %v, stored %v", ErrSchemaMismatch, p.Categories, cats)
	}
	for i := range cats {
		if cats[i] != p.Categories[i] {
			return fmt.Errorf("%w: categories %v, stored %v", ErrSchemaMismatch, p.Categories, cats)
		}
	}

	upper, lower, err := queryChannels(ctx, tx)
	if err != nil {
		return err
	}
	if len(upper) != len(p.DepthUpper) {
		return fmt.Errorf("%w: %d depth channels, stored %d", ErrSchemaMismatch, len(p.DepthUpper), len(upper))
	}
	for j := range upper {
		if math.Abs(upper[j]-p.DepthUpper[j]) > depthTolerance || math.Abs(lower[j]-p.DepthLower[j]) > depthTolerance {
			return fmt.Errorf("%w: channel %d spans %g..%g, stored %g..%g", ErrSchemaMismatch,
				j, p.DepthUpper[j], p.DepthLower[j], upper[j], lower[j])
		}
	}
	return nil
}

func insertLayout(ctx context.Context, tx *sql.Tx, p *report.Product) error {
	for _, kv := range p.Attributes.Pairs() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_attributes (name, value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("insert attribute %s: %w", kv[0], err)
		}
	}
	for i, c := range p.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_categories (category, position) VALUES (?, ?)`, c, i); err != nil {
			return fmt.Errorf("insert category %d: %w", c, err)
		}
	}
	for j := range p.DepthUpper {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_channels (channel_index, depth_upper, depth_lower) VALUES (?, ?, ?)`,
			j, p.DepthUpper[j], p.DepthLower[j]); err != nil {
			return fmt.Errorf("insert channel %d: %w", j, err)
		}
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryCategories(ctx context.Context, q querier) ([]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT category FROM report_categories ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func queryChannels(ctx context.Context, q querier) (upper, lower []float64, err error) {
	rows, err := q.QueryContext(ctx, `SELECT depth_upper, depth_lower FROM report_channels ORDER BY channel_index`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u, l float64
		if err := rows.Scan(&u, &l); err != nil {
			return nil, nil, err
		}
		upper = append(upper, u)
		lower = append(lower, l)
	}
	return upper, lower, rows.Err()
}

// Prior returns the last complete bin of the stored report, or nil when
// the store holds none.
func (db *DB) Prior(ctx context.Context) (*report.Prior, error) {
	var ms int64
	var dist sql.NullFloat64
	err := db.QueryRowContext(ctx,
		`SELECT time_ms, distance FROM report_pings WHERE valid = 1 ORDER BY time_ms DESC LIMIT 1`).Scan(&ms, &dist)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report.Prior{LastTime: time.UnixMilli(ms).UTC(), LastDistance: fromNullable(dist)}, nil
}

// LastTime returns the time of the last complete bin and whether one
// exists.
func (db *DB) LastTime(ctx context.Context) (time.Time, bool, error) {
	p, err := db.Prior(ctx)
	if err != nil || p == nil {
		return time.Time{}, false, err
	}
	return p.LastTime, true, nil
}

// ReadReport loads the whole stored report.
func (db *DB) ReadReport(ctx context.Context) (*report.Product, error) {
	var pairs [][2]string
	rows, err := db.QueryContext(ctx, `SELECT name, value FROM report_attributes`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var kv [2]string
		if err := rows.Scan(&kv[0], &kv[1]); err != nil {
			rows.Close()
			return nil, err
		}
		pairs = append(pairs, kv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	p := &report.Product{Attributes: report.ParseAttributes(pairs)}
	if p.Categories, err = queryCategories(ctx, db); err != nil {
		return nil, err
	}
	if p.DepthUpper, p.DepthLower, err = queryChannels(ctx, db); err != nil {
		return nil, err
	}

	index := map[int64]int{}
	rows, err = db.QueryContext(ctx, `
		SELECT time_ms, latitude, longitude, distance, bottom_depth
		FROM report_pings ORDER BY time_ms`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var ms int64
		var lat, lon, dist, bot sql.NullFloat64
		if err := rows.Scan(&ms, &lat, &lon, &dist, &bot); err != nil {
			rows.Close()
			return nil, err
		}
		index[ms] = len(p.Times)
		p.Times = append(p.Times, time.UnixMilli(ms).UTC())
		p.Latitude = append(p.Latitude, fromNullable(lat))
		p.Longitude = append(p.Longitude, fromNullable(lon))
		p.Distance = append(p.Distance, fromNullable(dist))
		p.BottomDepth = append(p.BottomDepth, fromNullable(bot))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(p.Times) == 0 || len(p.Categories) == 0 || len(p.DepthUpper) == 0 {
		return nil, ErrNoReport
	}

	catIndex := make(map[int]int, len(p.Categories))
	p.Values = make([]*mat.Dense, len(p.Categories))
	for c, id := range p.Categories {
		catIndex[id] = c
		p.Values[c] = mat.NewDense(len(p.Times), len(p.DepthUpper), nil)
	}

	rows, err = db.QueryContext(ctx, `SELECT time_ms, category, data FROM report_values`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	row := make([]float64, len(p.DepthUpper))
	for rows.Next() {
		var ms int64
		var cat int
		var blob []byte
		if err := rows.Scan(&ms, &cat, &blob); err != nil {
			return nil, err
		}
		i, ok := index[ms]
		c, ok2 := catIndex[cat]
		if !ok || !ok2 {
			return nil, fmt.Errorf("reportdb: orphan values for %d category %d", ms, cat)
		}
		if err := db.decodeRow(blob, row); err != nil {
			return nil, fmt.Errorf("decode %d category %d: %w", ms, cat, err)
		}
		p.Values[c].SetRow(i, row)
	}
	return p, rows.Err()
}

// Runs lists the recorded runs, oldest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, mode, source, first_time_ms, last_time_ms, bins_written, created_at
		FROM report_runs ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var first, last sql.NullInt64
		var created int64
		if err := rows.Scan(&r.ID, &r.Mode, &r.Source, &first, &last, &r.BinsWritten, &created); err != nil {
			return nil, err
		}
		if first.Valid {
			r.First = time.UnixMilli(first.Int64).UTC()
		}
		if last.Valid {
			r.Last = time.UnixMilli(last.Int64).UTC()
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// encodeRow packs row i of m as little-endian float64 bits and compresses
// it.
func (db *DB) encodeRow(m *mat.Dense, i int) []byte {
	_, n := m.Dims()
	raw := make([]byte, 8*n)
	for j := 0; j < n; j++ {
		binary.LittleEndian.PutUint64(raw[8*j:], math.Float64bits(m.At(i, j)))
	}
	return db.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

func (db *DB) decodeRow(blob []byte, dst []float64) error {
	raw, err := db.dec.DecodeAll(blob, nil)
	if err != nil {
		return err
	}
	if len(raw) != 8*len(dst) {
		return fmt.Errorf("%d bytes for %d channels", len(raw), len(dst))
	}
	for j := range dst {
		dst[j] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*j:]))
	}
	return nil
}

// SQLite stores NaN as NULL, so NaN is written as NULL explicitly.
func nullable(f float64) interface{} {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func fromNullable(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}
