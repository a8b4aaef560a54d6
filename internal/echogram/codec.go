package echogram

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/acoustic.report/internal/fsutil"
)

// formatVersion is bumped whenever the wire structs change incompatibly.
const formatVersion = 1

// ErrWrongProduct is returned when a file holds a different product kind.
var ErrWrongProduct = errors.New("echogram: file holds a different product")

type productKind string

const (
	kindEchogram    productKind = "sv"
	kindPredictions productKind = "predictions"
	kindBottom      productKind = "bottom"
)

// Input files are a gob stream inside a zstd frame. The wire structs keep
// to plain slices so the format does not depend on gonum internals.

type envelope struct {
	Version     int
	Kind        productKind
	Echogram    *wireEchogram
	Predictions *wirePredictions
	Bottom      *wireBottom
}

type wireMatrix struct {
	Rows, Cols int
	Data       []float64
}

type wireChannel struct {
	Frequency float64
	ID        string
	Sv        wireMatrix
}

type wireEchogram struct {
	PingTimes []int64
	Range     []float64
	Channels  []wireChannel
	Latitude  []float64
	Longitude []float64
	Distance  []float64
	Draft     []float64
	Heave     []float64
	Platform  string
}

type wireMask struct {
	Category int
	Grid     wireMatrix
}

type wirePredictions struct {
	PingTimes  []int64
	Range      []float64
	Categories []int
	Masks      []wireMask
}

type wireBottom struct {
	PingTimes []int64
	Range     []float64
	Mask      wireMatrix
}

// WriteEchogram encodes e to w.
func WriteEchogram(w io.Writer, e *Echogram) error {
	we := &wireEchogram{
		PingTimes: toNanos(e.PingTimes),
		Range:     e.Range,
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
		Distance:  e.Distance,
		Draft:     e.Draft,
		Heave:     e.Heave,
		Platform:  e.Platform,
	}
	for _, c := range e.Channels {
		we.Channels = append(we.Channels, wireChannel{Frequency: c.Frequency, ID: c.ID, Sv: toWire(c.Sv)})
	}
	return encode(w, &envelope{Kind: kindEchogram, Echogram: we})
}

// ReadEchogram decodes an echogram written by WriteEchogram.
func ReadEchogram(r io.Reader) (*Echogram, error) {
	env, err := decode(r, kindEchogram)
	if err != nil {
		return nil, err
	}
	we := env.Echogram
	if we == nil {
		return nil, fmt.Errorf("%w: empty echogram", ErrWrongProduct)
	}
	e := &Echogram{
		PingTimes: fromNanos(we.PingTimes),
		Range:     we.Range,
		Latitude:  we.Latitude,
		Longitude: we.Longitude,
		Distance:  we.Distance,
		Draft:     we.Draft,
		Heave:     we.Heave,
		Platform:  we.Platform,
	}
	for _, c := range we.Channels {
		sv, err := fromWire(c.Sv)
		if err != nil {
			return nil, fmt.Errorf("channel %g Hz: %w", c.Frequency, err)
		}
		e.Channels = append(e.Channels, Channel{Frequency: c.Frequency, ID: c.ID, Sv: sv})
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// WritePredictions encodes p to w.
func WritePredictions(w io.Writer, p *Predictions) error {
	wp := &wirePredictions{
		PingTimes:  toNanos(p.PingTimes),
		Range:      p.Range,
		Categories: p.Categories,
	}
	for _, id := range p.Categories {
		wp.Masks = append(wp.Masks, wireMask{Category: id, Grid: toWire(p.Masks[id])})
	}
	return encode(w, &envelope{Kind: kindPredictions, Predictions: wp})
}

// ReadPredictions decodes predictions written by WritePredictions.
func ReadPredictions(r io.Reader) (*Predictions, error) {
	env, err := decode(r, kindPredictions)
	if err != nil {
		return nil, err
	}
	wp := env.Predictions
	if wp == nil {
		return nil, fmt.Errorf("%w: empty predictions", ErrWrongProduct)
	}
	p := &Predictions{
		PingTimes:  fromNanos(wp.PingTimes),
		Range:      wp.Range,
		Categories: wp.Categories,
		Masks:      make(map[int]*mat.Dense, len(wp.Masks)),
	}
	for _, m := range wp.Masks {
		g, err := fromWire(m.Grid)
		if err != nil {
			return nil, fmt.Errorf("category %d: %w", m.Category, err)
		}
		p.Masks[m.Category] = g
	}
	return p, nil
}

// WriteBottom encodes b to w.
func WriteBottom(w io.Writer, b *Bottom) error {
	wb := &wireBottom{PingTimes: toNanos(b.PingTimes), Range: b.Range, Mask: toWire(b.Mask)}
	return encode(w, &envelope{Kind: kindBottom, Bottom: wb})
}

// ReadBottom decodes a bottom product written by WriteBottom.
func ReadBottom(r io.Reader) (*Bottom, error) {
	env, err := decode(r, kindBottom)
	if err != nil {
		return nil, err
	}
	wb := env.Bottom
	if wb == nil {
		return nil, fmt.Errorf("%w: empty bottom", ErrWrongProduct)
	}
	mask, err := fromWire(wb.Mask)
	if err != nil {
		return nil, fmt.Errorf("bottom mask: %w", err)
	}
	return &Bottom{PingTimes: fromNanos(wb.PingTimes), Range: wb.Range, Mask: mask}, nil
}

// SaveEchogram writes e to path.
func SaveEchogram(fsys fsutil.FileSystem, path string, e *Echogram) error {
	return fsutil.WriteAtomic(fsys, path, func(w io.Writer) error { return WriteEchogram(w, e) })
}

// SavePredictions writes p to path.
func SavePredictions(fsys fsutil.FileSystem, path string, p *Predictions) error {
	return fsutil.WriteAtomic(fsys, path, func(w io.Writer) error { return WritePredictions(w, p) })
}

// SaveBottom writes b to path.
func SaveBottom(fsys fsutil.FileSystem, path string, b *Bottom) error {
	return fsutil.WriteAtomic(fsys, path, func(w io.Writer) error { return WriteBottom(w, b) })
}

// LoadEchogram reads an echogram file.
func LoadEchogram(fsys fsutil.FileSystem, path string) (*Echogram, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open echogram: %w", err)
	}
	defer f.Close()
	e, err := ReadEchogram(f)
	if err != nil {
		return nil, fmt.Errorf("read echogram %s: %w", path, err)
	}
	return e, nil
}

// LoadPredictions reads a predictions file.
func LoadPredictions(fsys fsutil.FileSystem, path string) (*Predictions, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open predictions: %w", err)
	}
	defer f.Close()
	p, err := ReadPredictions(f)
	if err != nil {
		return nil, fmt.Errorf("read predictions %s: %w", path, err)
	}
	return p, nil
}

// LoadBottom reads a bottom file.
func LoadBottom(fsys fsutil.FileSystem, path string) (*Bottom, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bottom: %w", err)
	}
	defer f.Close()
	b, err := ReadBottom(f)
	if err != nil {
		return nil, fmt.Errorf("read bottom %s: %w", path, err)
	}
	return b, nil
}

func encode(w io.Writer, env *envelope) error {
	env.Version = formatVersion
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(env); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode %s: %w", env.Kind, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", env.Kind, err)
	}
	return nil
}

func decode(r io.Reader, want productKind) (*envelope, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var env envelope
	if err := gob.NewDecoder(zr).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", want, err)
	}
	if env.Version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", env.Version)
	}
	if env.Kind != want {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongProduct, env.Kind, want)
	}
	return &env, nil
}

func toWire(m *mat.Dense) wireMatrix {
	if m == nil {
		return wireMatrix{}
	}
	r, c := m.Dims()
	return wireMatrix{Rows: r, Cols: c, Data: mat.DenseCopyOf(m).RawMatrix().Data}
}

func fromWire(w wireMatrix) (*mat.Dense, error) {
	if w.Rows == 0 || w.Cols == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalid)
	}
	if len(w.Data) != w.Rows*w.Cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrInvalid, len(w.Data), w.Rows, w.Cols)
	}
	return mat.NewDense(w.Rows, w.Cols, w.Data), nil
}

func toNanos(ts []time.Time) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.UnixNano()
	}
	return out
}

func fromNanos(ns []int64) []time.Time {
	out := make([]time.Time, len(ns))
	for i, n := range ns {
		out[i] = time.Unix(0, n).UTC()
	}
	return out
}
