// Command letterpdf exports one letter to PDF from the command line.
//
// The letter is either read from a JSON file (the row shape of the letters
// table with its letter_templates relation) or loaded by ID from the
// configured database:
//
//	letterpdf -letter letter.json -signature sig.json -o letter.pdf
//	letterpdf -config letterpdf.yaml -id 7d0c... -o letter.pdf
//	letterpdf -letter letter.json -png page.png -zoom 1.5
//	letterpdf -letter letter.json -print letter.html
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lvillar/letterpdf"
	"github.com/lvillar/letterpdf/config"
	"github.com/lvillar/letterpdf/internal/app"
	"github.com/lvillar/letterpdf/logger"
	"github.com/lvillar/letterpdf/model"
	"github.com/lvillar/letterpdf/preview"
)

func main() {
	if err := run(); err != nil {
		var ee *letterpdf.ExportError
		if errors.As(err, &ee) {
			fmt.Fprintf(os.Stderr, "letterpdf: %s\n  %v\n", ee.UserMessage(), err)
		} else {
			fmt.Fprintf(os.Stderr, "letterpdf: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "YAML config file")
		letterPath = flag.String("letter", "", "letter JSON file")
		sigPath    = flag.String("signature", "", "signature JSON file (with -letter)")
		id         = flag.String("id", "", "letter ID to load from the database")
		output     = flag.String("o", "", "output PDF path (default: the letter's filename)")
		pngPath    = flag.String("png", "", "write a preview PNG of page 1 instead of the PDF")
		zoom       = flag.Float64("zoom", 1, "preview zoom, with -png")
		printPath  = flag.String("print", "", "write the print HTML instead of the PDF")
		scale      = flag.Float64("scale", 0, "raster scale (default from config)")
		quality    = flag.Float64("quality", 0, "JPEG quality in (0, 1] (default from config)")
		noTemplate = flag.Bool("no-template", false, "omit the letterhead template")
		offline    = flag.Bool("offline", false, "skip the connectivity probe")
	)
	flag.Parse()

	if (*letterPath == "") == (*id == "") {
		flag.Usage()
		return errors.New("exactly one of -letter and -id is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *offline || *letterPath != "" {
		cfg.Export.SkipProbe = true
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	letter, err := loadLetter(ctx, a, *letterPath, *sigPath, *id)
	if err != nil {
		return err
	}

	opts := letterpdf.Options{
		Scale:      *scale,
		Quality:    *quality,
		NoTemplate: *noTemplate,
		Progress: func(v float64) {
			log.Debug("export progress", zap.Float64("progress", v))
		},
	}

	if *printPath != "" {
		doc, err := a.Exporter.PrintHTML(ctx, letter, opts)
		if err != nil {
			return err
		}
		return os.WriteFile(*printPath, doc, 0o644)
	}

	res, err := a.Exporter.Export(ctx, letter, opts)
	if err != nil {
		return err
	}

	if *pngPath != "" {
		v, err := preview.Open(res.PDF)
		if err != nil {
			return err
		}
		defer v.Close()
		v.SetZoom(*zoom)
		img, err := v.RenderPNG()
		if err != nil {
			return err
		}
		return os.WriteFile(*pngPath, img, 0o644)
	}

	path := *output
	if path == "" {
		path = res.Filename
	}
	if err := os.WriteFile(path, res.PDF, 0o644); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// loadLetter reads the letter from a file, seeding the in-memory store with
// its signature, or loads it by ID.
func loadLetter(ctx context.Context, a *app.App, letterPath, sigPath, id string) (*model.Letter, error) {
	if id != "" {
		l, err := a.Letters.GetLetter(ctx, id)
		if err != nil {
			return nil, err
		}
		if l == nil {
			return nil, fmt.Errorf("letter %s: %w", id, letterpdf.ErrNotFound)
		}
		return l, nil
	}

	var l model.Letter
	if err := readJSON(letterPath, &l); err != nil {
		return nil, err
	}
	if sigPath != "" {
		if a.Memory == nil {
			return nil, errors.New("-signature needs the in-memory store; unset the database DSN")
		}
		var sig model.Signature
		if err := readJSON(sigPath, &sig); err != nil {
			return nil, err
		}
		if l.SignatureID == "" {
			l.SignatureID = sig.ID
		}
		a.Memory.PutSignature(&sig)
	}
	return &l, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
