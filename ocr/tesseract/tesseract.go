// Package tesseract provides an ocr.Engine backed by the Tesseract library
// through gosseract. Importing it registers the engine as ocr's default.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"
	xdraw "golang.org/x/image/draw"

	"github.com/wudi/regionedit/ocr"
)

func init() {
	ocr.SetDefaultEngine(NewTesseractEngine())
}

// TesseractEngine implements ocr.Engine and ocr.BatchEngine. Each input gets
// its own client, so the engine is safe for concurrent use.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
	// PageSegMode is applied when an input does not set
	// tessedit_pageseg_mode itself; zero leaves Tesseract's default.
	PageSegMode gosseract.PageSegMode
	// MaxSide downscales rasters whose longer side exceeds it, in pixels.
	// Boxes are reported in the original raster. Zero means no limit.
	MaxSide int
}

// DefaultMaxSide keeps rasters well inside Tesseract's 32767 pixel limit.
const DefaultMaxSide = 10000

// NewTesseractEngine constructs a Tesseract-backed OCR engine.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient, MaxSide: DefaultMaxSide}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input.
func (e *TesseractEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.clientFactory()
	defer c.Close()
	return e.recognizeWithClient(c, in)
}

// RecognizeBatch processes inputs sequentially, stopping at the first
// failure.
func (e *TesseractEngine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		res, err := e.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *TesseractEngine) recognizeWithClient(c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	imgData, place, err := prepareImage(in.Image, in.Region, e.MaxSide)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	if _, ok := in.Metadata[ocr.VarPageSegMode]; !ok && e.PageSegMode != 0 {
		if err := c.SetPageSegMode(e.PageSegMode); err != nil {
			return ocr.Result{}, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("layout: %w", err)
	}
	res := ocr.Result{
		InputID:   in.ID,
		PlainText: strings.TrimSpace(text),
		Blocks:    layout(boxes, place),
		Language:  firstLanguage(in.Languages),
	}
	if w, h, err := in.ImageSize(); err == nil {
		res.Width, res.Height = w, h
	}
	return res, nil
}

// placement maps pixels of the image handed to Tesseract back to the input
// raster.
type placement struct {
	offset image.Point
	// scale is recognised pixels per input pixel; zero means 1.
	scale float64
}

func (p placement) region(r image.Rectangle) ocr.Region {
	s := p.scale
	if s == 0 {
		s = 1
	}
	return ocr.Region{
		X:      float64(p.offset.X) + float64(r.Min.X)/s,
		Y:      float64(p.offset.Y) + float64(r.Min.Y)/s,
		Width:  float64(r.Dx()) / s,
		Height: float64(r.Dy()) / s,
	}
}

// layout groups word boxes into blocks and lines by Tesseract's numbering,
// mapping them into full-image pixels.
func layout(boxes []gosseract.BoundingBox, place placement) []ocr.TextBlock {
	type lineKey struct{ block, par, line int }
	var blocks []ocr.TextBlock
	blockAt := make(map[int]int)
	lineAt := make(map[lineKey]int)
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" || b.Confidence < 0 {
			continue
		}
		w := ocr.TextWord{
			Text:       word,
			Bounds:     place.region(b.Box),
			Confidence: b.Confidence / 100,
		}
		bi, ok := blockAt[b.BlockNum]
		if !ok {
			bi = len(blocks)
			blockAt[b.BlockNum] = bi
			blocks = append(blocks, ocr.TextBlock{})
		}
		key := lineKey{b.BlockNum, b.ParNum, b.LineNum}
		li, ok := lineAt[key]
		if !ok {
			li = len(blocks[bi].Lines)
			lineAt[key] = li
			blocks[bi].Lines = append(blocks[bi].Lines, ocr.TextLine{})
		}
		line := &blocks[bi].Lines[li]
		line.Words = append(line.Words, w)
	}

	for bi := range blocks {
		blk := &blocks[bi]
		var lineTexts []string
		var lineBounds []ocr.Region
		var blockConf float64
		for li := range blk.Lines {
			line := &blk.Lines[li]
			words := make([]string, len(line.Words))
			var sum float64
			for i, w := range line.Words {
				words[i] = w.Text
				sum += w.Confidence
			}
			line.Text = strings.Join(words, " ")
			line.Bounds = mergeBounds(line.Words)
			line.Confidence = sum / float64(len(line.Words))
			lineTexts = append(lineTexts, line.Text)
			lineBounds = append(lineBounds, line.Bounds)
			blockConf += line.Confidence
		}
		blk.Text = strings.Join(lineTexts, "\n")
		blk.Bounds = unionRegions(lineBounds)
		blk.Confidence = blockConf / float64(len(blk.Lines))
	}
	return blocks
}

func mergeBounds(words []ocr.TextWord) ocr.Region {
	rs := make([]ocr.Region, len(words))
	for i, w := range words {
		rs[i] = w.Bounds
	}
	return unionRegions(rs)
}

func unionRegions(rs []ocr.Region) ocr.Region {
	if len(rs) == 0 {
		return ocr.Region{}
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	var maxX, maxY float64
	for _, r := range rs {
		minX = math.Min(minX, r.X)
		minY = math.Min(minY, r.Y)
		maxX = math.Max(maxX, r.X+r.Width)
		maxY = math.Max(maxY, r.Y+r.Height)
	}
	return ocr.Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// prepareImage cuts region out of data and shrinks the result so neither
// side exceeds maxSide. Untouched input is passed through as is.
func prepareImage(data []byte, region *ocr.Region, maxSide int) ([]byte, placement, error) {
	crop := region != nil && !region.IsEmpty()
	if !crop {
		if maxSide <= 0 {
			return data, placement{}, nil
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, placement{}, fmt.Errorf("decode image header: %w", err)
		}
		if cfg.Width <= maxSide && cfg.Height <= maxSide {
			return data, placement{}, nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, placement{}, fmt.Errorf("decode image: %w", err)
	}
	rect := img.Bounds()
	if crop {
		rect = region.Pixels().Intersect(img.Bounds())
		if rect.Empty() {
			return nil, placement{}, fmt.Errorf("region outside image bounds")
		}
	}

	place := placement{offset: rect.Min, scale: 1}
	w, h := rect.Dx(), rect.Dy()
	if side := max(w, h); maxSide > 0 && side > maxSide {
		place.scale = float64(maxSide) / float64(side)
		w = max(1, int(math.Round(float64(w)*place.scale)))
		h = max(1, int(math.Round(float64(h)*place.scale)))
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if place.scale == 1 {
		xdraw.Copy(dst, image.Point{}, img, rect, xdraw.Src, nil)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, xdraw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, placement{}, fmt.Errorf("encode prepared image: %w", err)
	}
	return buf.Bytes(), place, nil
}
