package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/docseal/config"
	"github.com/wudi/docseal/observability"
	"github.com/wudi/docseal/ocr"
	"github.com/wudi/docseal/ocr/tesseract"
	"github.com/wudi/docseal/pipeline"
	"github.com/wudi/docseal/region"
)

// app is the state shared by subcommands, filled in before each run.
type app struct {
	configPath string
	logLevel   string
	password   string

	cfg  *config.Config
	log  observability.Logger
	pipe *pipeline.Pipeline
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "docseal",
		Short:         "Fingerprint documents into a Merkle root",
		Long:          `Extracts text, page image, signature and stamp fingerprints from PDF, image and text files and commits to them with a two-level Merkle root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.password, "password", "", "Password for encrypted PDFs")

	root.AddCommand(newHashCmd(a))
	root.AddCommand(newCombineCmd())
	root.AddCommand(newVerifyCmd(a))
	root.AddCommand(newWatchCmd(a))
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	a.log = observability.NewSlogFromConfig(cfg.Logging, nil)
	engine, err := newEngine(cfg.OCR)
	if err != nil {
		return err
	}
	a.pipe = pipeline.NewFromConfig(cfg, engine,
		pipeline.WithLogger(a.log),
		pipeline.WithPassword(a.password),
	)
	return nil
}

func newEngine(cfg config.OCRConfig) (ocr.Engine, error) {
	switch cfg.Engine {
	case "", "tesseract":
		return tesseract.NewEngine(tesseract.WithDefaultLanguages(cfg.Languages...)), nil
	case "none":
		return ocr.Disabled{}, nil
	}
	return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
}

// regionFlags holds the --signature and --stamp values shared by hash,
// verify and watch.
type regionFlags struct {
	signature string
	stamp     string
}

func (f *regionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.signature, "signature", "", "Signature region as x,y,width,height in page pixels")
	cmd.Flags().StringVar(&f.stamp, "stamp", "", "Stamp region as x,y,width,height in page pixels")
}

func (f *regionFlags) parse() (sig, stamp *region.Region, err error) {
	if f.signature != "" {
		if sig, err = region.Parse(f.signature, region.Signature); err != nil {
			return nil, nil, err
		}
	}
	if f.stamp != "" {
		if stamp, err = region.Parse(f.stamp, region.Stamp); err != nil {
			return nil, nil, err
		}
	}
	return sig, stamp, nil
}

func readFile(path string, limit int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%s: %w", path, pipeline.ErrTooLarge)
	}
	return os.ReadFile(path)
}
