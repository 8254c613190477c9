// Command regionedit lists, hit-tests and edits the text regions of a PDF.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	_ "golang.org/x/image/tiff"

	"github.com/wudi/regionedit/config"
	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/editor"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/extract/jsonitems"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/ocr/tesseract"
	"github.com/wudi/regionedit/pdftest"
	"github.com/wudi/regionedit/session"
	"github.com/wudi/regionedit/viewport"
)

const usage = `Usage: regionedit [-config file] <command> [flags]

Commands:
  regions  list the text regions of a page
  hit      find the region under a device point
  edit     replace the text of a region and write the result
  ocr      recognise a rendered page image and list the derived regions
  items    build regions from a pdf.js textContent JSON dump
  sample   write a small sample PDF
`

// errUsage marks command-line mistakes; they exit with status 2.
var errUsage = errors.New("usage")

type command func(ctx context.Context, env *env, args []string) error

var commands = map[string]command{
	"regions": runRegions,
	"hit":     runHit,
	"edit":    runEdit,
	"ocr":     runOCR,
	"items":   runItems,
	"sample":  runSample,
}

type env struct {
	cfg config.Config
	log observability.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "regionedit: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("regionedit", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	cfgPath := fs.String("config", "regionedit.toml", "TOML configuration file")
	logLevel := fs.String("log", "", "log level override (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, fs.Arg(0))
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	e := &env{cfg: cfg, log: observability.NewSlogLogger(slog.New(handler))}
	return cmd(ctx, e, fs.Args()[1:])
}

// open starts a session on the PDF at path.
func (e *env) open(ctx context.Context, path string) (*session.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sc, err := e.cfg.Session(e.log)
	if err != nil {
		return nil, err
	}
	return session.Open(ctx, data, sc)
}

func parse(fs *flag.FlagSet, args []string, operands string) error {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: regionedit %s [flags] %s\n", fs.Name(), operands)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if want := len(strings.Fields(operands)); fs.NArg() != want {
		fs.Usage()
		return fmt.Errorf("%w: %s expects %s", errUsage, fs.Name(), operands)
	}
	return nil
}

func runRegions(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("regions", flag.ContinueOnError)
	page := fs.Int("page", -1, "page index; -1 lists every page")
	if err := parse(fs, args, "<pdf>"); err != nil {
		return err
	}
	s, err := e.open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	pages := []int{*page}
	if *page < 0 {
		pages = pages[:0]
		for i := 0; i < s.NumPages(ctx); i++ {
			pages = append(pages, i)
		}
	}
	var out []regionView
	for _, p := range pages {
		for _, r := range s.Regions(ctx, p) {
			out = append(out, view(r))
		}
	}
	return emit(out)
}

type viewportFunc func(ctx context.Context, s *session.Session, page int) (viewport.Viewport, error)

// viewportFlags registers the flags describing how the page is displayed.
func viewportFlags(fs *flag.FlagSet) viewportFunc {
	zoom := fs.Float64("zoom", 1, "device pixels per point")
	rotation := fs.Int("rotation", -1, "display rotation in degrees; -1 uses the page's /Rotate")
	return func(ctx context.Context, s *session.Session, page int) (viewport.Viewport, error) {
		doc, err := s.Current().Document(ctx)
		if err != nil {
			return viewport.Viewport{}, err
		}
		p, err := doc.Page(page)
		if err != nil {
			return viewport.Viewport{}, err
		}
		vp := viewport.ForPage(p.MediaBox, *zoom)
		vp.Rotation = p.Rotate
		if *rotation >= 0 {
			vp.Rotation = *rotation
		}
		return vp, vp.Validate()
	}
}

func runHit(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("hit", flag.ContinueOnError)
	page := fs.Int("page", 0, "page index")
	x := fs.Float64("x", 0, "device x in pixels from the left")
	y := fs.Float64("y", 0, "device y in pixels from the top")
	vpFor := viewportFlags(fs)
	if err := parse(fs, args, "<pdf>"); err != nil {
		return err
	}
	s, err := e.open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	vp, err := vpFor(ctx, s, *page)
	if err != nil {
		return err
	}
	r, ok := s.HitTest(ctx, *page, coords.Point{X: *x, Y: *y}, vp)
	if !ok {
		return emit(nil)
	}
	return emit(view(r))
}

func runEdit(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	page := fs.Int("page", 0, "page index")
	id := fs.String("id", "", "region id; when empty the region under -x/-y is edited")
	x := fs.Float64("x", 0, "device x in pixels from the left")
	y := fs.Float64("y", 0, "device y in pixels from the top")
	text := fs.String("text", "", "replacement text; empty deletes the region's text")
	out := fs.String("o", "", "output file (required)")
	vpFor := viewportFlags(fs)
	if err := parse(fs, args, "<pdf>"); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("%w: edit needs -o", errUsage)
	}
	s, err := e.open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	var target extract.TextRegion
	found := false
	if *id != "" {
		for _, r := range s.Regions(ctx, *page) {
			if r.ID == *id {
				target, found = r, true
				break
			}
		}
	} else {
		vp, err := vpFor(ctx, s, *page)
		if err != nil {
			return err
		}
		target, found = s.HitTest(ctx, *page, coords.Point{X: *x, Y: *y}, vp)
	}
	if !found {
		return fmt.Errorf("no region on page %d at the given position: %w", *page, editor.ErrInvalidRegion)
	}

	data, err := s.ApplyEdit(ctx, target, *text)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	e.log.Info("edited", observability.String("region", target.ID), observability.String("out", *out))
	return nil
}

func runOCR(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("ocr", flag.ContinueOnError)
	page := fs.Int("page", 0, "page index the image was rendered from")
	if err := parse(fs, args, "<pdf> <image>"); err != nil {
		return err
	}
	img, err := decodeImage(fs.Arg(1))
	if err != nil {
		return err
	}
	sc, err := e.cfg.Session(e.log)
	if err != nil {
		return err
	}
	engine := tesseract.NewTesseractEngine()
	sc.OCR.Engine = engine
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read %s: %w", fs.Arg(0), err)
	}
	s, err := session.Open(ctx, data, sc)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	derived, err := s.RecognizePage(ctx, *page, img)
	if err != nil {
		return err
	}
	out := make([]regionView, len(derived))
	for i, r := range derived {
		out[i] = view(r)
	}
	return emit(out)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func runItems(_ context.Context, _ *env, args []string) error {
	fs := flag.NewFlagSet("items", flag.ContinueOnError)
	page := fs.Int("page", 0, "page index recorded on the regions")
	if err := parse(fs, args, "<json>"); err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read %s: %w", fs.Arg(0), err)
	}
	items, err := jsonitems.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	regions := extract.Extract(items, *page)
	out := make([]regionView, len(regions))
	for i, r := range regions {
		out[i] = view(r)
	}
	return emit(out)
}

func runSample(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	if err := parse(fs, args, "<out.pdf>"); err != nil {
		return err
	}
	if err := os.WriteFile(fs.Arg(0), pdftest.Invoice(), 0o644); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	e.log.Info("sample written", observability.String("path", fs.Arg(0)))
	return nil
}

type regionView struct {
	ID         string     `json:"id"`
	Page       int        `json:"page"`
	Text       string     `json:"text"`
	Box        [4]float64 `json:"bbox"`
	Font       string     `json:"font,omitempty"`
	Size       float64    `json:"size"`
	Origin     string     `json:"origin"`
	Confidence float64    `json:"confidence"`
}

func view(r extract.TextRegion) regionView {
	b := r.BoundingBox
	return regionView{
		ID:         r.ID,
		Page:       r.PageIndex,
		Text:       r.OriginalText,
		Box:        [4]float64{b.X, b.Y, b.Width, b.Height},
		Font:       r.FontName,
		Size:       r.FontSizePt,
		Origin:     r.Origin.String(),
		Confidence: r.Confidence,
	}
}

func emit(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
