// Package config loads regionedit settings from TOML files.
//
// A file may set any subset of the sections below; everything else keeps
// its default.
//
//	[history]
//	capacity = 16
//
//	[edit]
//	background = [1.0, 1.0, 1.0]
//	fallback_font = "Helvetica"
//	unicode_font = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"
//	compress = true
//
//	[ocr]
//	languages = ["eng"]
//	dpi = 144
//	min_confidence = 0.5
//	psm = 3
//	level = "lines"
//
//	[log]
//	level = "info"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/wudi/regionedit/editor"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/history"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/session"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config mirrors the file layout.
type Config struct {
	History History `toml:"history"`
	Edit    Edit    `toml:"edit"`
	OCR     OCR     `toml:"ocr"`
	Log     Log     `toml:"log"`
}

type History struct {
	Capacity int `toml:"capacity"`
}

type Edit struct {
	// Background is an RGB triple in [0, 1].
	Background   []float64 `toml:"background"`
	FallbackFont string    `toml:"fallback_font"`
	// UnicodeFont is a TrueType or OpenType file; empty means Go Regular.
	UnicodeFont  string    `toml:"unicode_font"`
	Compress     bool      `toml:"compress"`
}

type OCR struct {
	Languages     []string `toml:"languages"`
	DPI           int      `toml:"dpi"`
	MinConfidence float64  `toml:"min_confidence"`
	PSM           int      `toml:"psm"`
	// Level is "lines", "words" or "blocks".
	Level         string   `toml:"level"`
}

type Log struct {
	Level string `toml:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		History: History{Capacity: history.DefaultCapacity},
		Edit: Edit{
			Background:   []float64{1, 1, 1},
			FallbackFont: "Helvetica",
			Compress:     true,
		},
		OCR: OCR{
			Languages: []string{"eng"},
			DPI:       144,
			Level:     "lines",
		},
		Log: Log{Level: "info"},
	}
}

// ParseError reports malformed TOML.
type ParseError struct {
	Path         string
	Line, Column int
	Message      string
	Err          error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes data over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(source string, data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			perr.Message = serr.String()
		}
		return Config{}, perr
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.History.Capacity != 0 && (c.History.Capacity < history.MinCapacity || c.History.Capacity > history.MaxCapacity) {
		return fmt.Errorf("%w: history.capacity %d outside [%d, %d]", ErrInvalid, c.History.Capacity, history.MinCapacity, history.MaxCapacity)
	}
	if len(c.Edit.Background) != 3 {
		return fmt.Errorf("%w: edit.background needs 3 components, got %d", ErrInvalid, len(c.Edit.Background))
	}
	for _, v := range c.Edit.Background {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: edit.background component %g outside [0, 1]", ErrInvalid, v)
		}
	}
	if _, ok := fonts.Standard(c.Edit.FallbackFont); c.Edit.FallbackFont != "" && !ok {
		return fmt.Errorf("%w: edit.fallback_font %q is not a standard font", ErrInvalid, c.Edit.FallbackFont)
	}
	if c.OCR.DPI < 0 || c.OCR.DPI > 1200 {
		return fmt.Errorf("%w: ocr.dpi %d", ErrInvalid, c.OCR.DPI)
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 1 {
		return fmt.Errorf("%w: ocr.min_confidence %g outside [0, 1]", ErrInvalid, c.OCR.MinConfidence)
	}
	if c.OCR.PSM < 0 || c.OCR.PSM > 13 {
		return fmt.Errorf("%w: ocr.psm %d outside [0, 13]", ErrInvalid, c.OCR.PSM)
	}
	if _, err := c.OCRLevel(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// OCRLevel maps ocr.level to the extraction level.
func (c Config) OCRLevel() (extract.OCRLevel, error) {
	switch c.OCR.Level {
	case "", "lines":
		return extract.OCRLines, nil
	case "words":
		return extract.OCRWords, nil
	case "blocks":
		return extract.OCRBlocks, nil
	}
	return 0, fmt.Errorf("%w: ocr.level %q", ErrInvalid, c.OCR.Level)
}

// LogLevel maps log.level to a slog level.
func (c Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	return l, nil
}

// Session builds the session configuration, loading the Unicode font file
// if one is named.
func (c Config) Session(logger observability.Logger) (session.Config, error) {
	if err := c.Validate(); err != nil {
		return session.Config{}, err
	}
	level, _ := c.OCRLevel()
	bg := editor.Color{R: c.Edit.Background[0], G: c.Edit.Background[1], B: c.Edit.Background[2]}
	out := session.Config{
		HistoryCapacity: c.History.Capacity,
		Edit: editor.Options{
			Background:   &bg,
			FallbackFont: c.Edit.FallbackFont,
			Compress:     c.Edit.Compress,
		},
		OCR: session.OCRConfig{
			Languages:     append([]string(nil), c.OCR.Languages...),
			DPI:           c.OCR.DPI,
			MinConfidence: c.OCR.MinConfidence,
			PSM:           c.OCR.PSM,
			Level:         level,
		},
		Logger: logger,
	}
	if c.Edit.UnicodeFont != "" {
		data, err := os.ReadFile(c.Edit.UnicodeFont)
		if err != nil {
			return session.Config{}, fmt.Errorf("unicode font: %w", err)
		}
		tt, err := fonts.LoadTrueType(c.Edit.UnicodeFont, data)
		if err != nil {
			return session.Config{}, fmt.Errorf("unicode font %s: %w", c.Edit.UnicodeFont, err)
		}
		out.Edit.UnicodeFont = tt
	}
	return out, nil
}
