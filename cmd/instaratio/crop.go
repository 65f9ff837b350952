package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dixieflatline76/InstaRatio/asset"
	"github.com/dixieflatline76/InstaRatio/config"
	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/dixieflatline76/InstaRatio/pkg/sink"
	"github.com/dixieflatline76/InstaRatio/pkg/surface"
)

var errQuit = errors.New("cancelled")

// cropOptions are the flags of the crop command.
type cropOptions struct {
	in      string
	preset  string
	rect    string
	out     string
	smart   bool
	quality int
}

func parseCropFlags(args []string, cfg *config.AppConfig) (*cropOptions, error) {
	opts := &cropOptions{}
	fs := flag.NewFlagSet("crop", flag.ContinueOnError)
	fs.StringVar(&opts.in, "in", "", "image to crop (required)")
	fs.StringVar(&opts.preset, "preset", firstNonEmpty(cfg.GetDefaultPreset(), preset.Default), "aspect ratio preset, see 'instaratio presets'")
	fs.StringVar(&opts.rect, "rect", "", "crop box as x,y,w,h; prompts when empty")
	fs.StringVar(&opts.out, "out", firstNonEmpty(cfg.GetOutputDir(), sink.DefaultDir()), "output directory")
	fs.BoolVar(&opts.smart, "smart", cfg.GetSmartPlacement(), "place the suggested crop box on faces or detail")
	fs.IntVar(&opts.quality, "quality", cfg.GetJPEGQuality(), "JPEG quality 1-100")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.in == "" && fs.NArg() > 0 {
		opts.in = fs.Arg(0)
	}
	if opts.in == "" {
		return nil, errors.New("crop: -in is required")
	}
	return opts, nil
}

func runCrop(args []string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return cropWith(context.Background(), cfg, args, stdin, stdout)
}

func cropWith(ctx context.Context, cfg *config.AppConfig, args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseCropFlags(args, cfg)
	if err != nil {
		return err
	}

	factory, err := surface.Configure(opts.smart, cfg.GetFaceModelPath())
	if err != nil {
		return err
	}
	s, err := crop.NewSession(preset.Builtin(), factory, crop.WithJPEGQuality(opts.quality))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SelectPreset(opts.preset); err != nil {
		return err
	}

	data, err := os.ReadFile(opts.in)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	src, err := s.LoadImage(ctx, data, mimeFor(opts.in, data))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Loaded %s: %dx%d %s\n", filepath.Base(opts.in), src.Width(), src.Height(), src.MIMEType)

	r, ok := s.Surface().(*surface.Rect)
	if !ok {
		return errors.New("crop: surface does not accept crop rectangles")
	}
	if opts.rect != "" {
		want, err := parseRect(opts.rect)
		if err != nil {
			return err
		}
		r.SetRect(want)
	} else if err := promptRect(r, stdin, stdout); err != nil {
		return err
	}

	out, err := s.Process(ctx)
	if err != nil {
		return err
	}

	dir := sink.NewDir(opts.out)
	var path string
	_, err = s.Download(ctx, crop.SinkFunc(func(ctx context.Context, name string, data []byte) error {
		var err error
		path, err = dir.SavePath(ctx, name, data)
		return err
	}))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Saved %dx%d image to %s\n", out.Width, out.Height, path)
	return nil
}

// promptRect lets the user adjust the crop box from the terminal. An empty
// line accepts the current box.
func promptRect(r *surface.Rect, stdin io.Reader, stdout io.Writer) error {
	if help, err := asset.NewManager().GetText(asset.CropHelpText); err == nil {
		fmt.Fprint(stdout, help)
	}
	size := r.Size()
	fmt.Fprintf(stdout, "Image is %dx%d, ratio %s.\n", size.X, size.Y, r.Ratio())

	sc := bufio.NewScanner(stdin)
	for {
		fmt.Fprintf(stdout, "crop [%s]> ", formatRect(r.CropRect()))
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			fmt.Fprintln(stdout)
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			return nil
		case "q", "quit":
			return errQuit
		}
		want, err := parseRect(line)
		if err != nil {
			fmt.Fprintln(stdout, err)
			continue
		}
		if got := r.SetRect(want); got != want {
			fmt.Fprintf(stdout, "Adjusted to %s to keep the ratio.\n", formatRect(got))
		}
	}
}

// parseRect parses "x,y,w,h" into a rectangle.
func parseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid crop box %q, want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid crop box %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid crop box %q: width and height must be positive", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

func formatRect(r image.Rectangle) string {
	return fmt.Sprintf("%d,%d,%d,%d", r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

// mimeFor guesses the MIME type from the extension, then from the content.
func mimeFor(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	return http.DetectContentType(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
