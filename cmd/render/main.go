// Command render renders one entry template to stdout or a file.
//
//	render -root views -data page.yaml home.html > home.out.html
//	render -root views -out public/index.html home.html
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aescanero/dago-view-render/internal/config"
	"github.com/aescanero/dago-view-render/internal/eval/css"
	"github.com/aescanero/dago-view-render/internal/logging"
	"github.com/aescanero/dago-view-render/internal/render"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

var errUsage = errors.New("usage: render [flags] <entry>")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "render: %v\n", err)
		}
		os.Exit(1)
	}
}

type options struct {
	root         string
	partials     string
	dataFile     string
	defaultsFile string
	out          string
	open         string
	close        string
	cssStage     int
	cssDisabled  string
	noCSS        bool
	maxDepth     int
	timeout      time.Duration
	logLevel     string
}

func parseFlags(args []string, stderr io.Writer) (options, string, error) {
	var opts options
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.root, "root", render.DefaultRootDir, "directory holding entry templates")
	fs.StringVar(&opts.partials, "partials", "", "directory holding partials (default <root>/../partials)")
	fs.StringVar(&opts.dataFile, "data", "", "YAML or JSON file with template data")
	fs.StringVar(&opts.defaultsFile, "defaults", "", "YAML or JSON file replacing the default values")
	fs.StringVar(&opts.out, "out", "", "write the page to this file instead of stdout")
	fs.StringVar(&opts.open, "open", render.DefaultOpenBracket, "opening placeholder delimiter")
	fs.StringVar(&opts.close, "close", render.DefaultCloseBracket, "closing placeholder delimiter")
	fs.IntVar(&opts.cssStage, "css-stage", 0, "lowest stylesheet feature stage to apply")
	fs.StringVar(&opts.cssDisabled, "css-disable", "", "comma separated stylesheet features to skip")
	fs.BoolVar(&opts.noCSS, "no-css", false, "skip stylesheet post-processing")
	fs.IntVar(&opts.maxDepth, "max-depth", render.DefaultMaxDepth, "maximum partial nesting")
	fs.DurationVar(&opts.timeout, "timeout", 0, "abort rendering after this long")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return opts, "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, "", errUsage
	}

	return opts, fs.Arg(0), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, entry, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger, err := logging.NewWithOutput(opts.logLevel, "stderr")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	renderer, err := newRenderer(opts, logger)
	if err != nil {
		return err
	}

	var data map[string]any
	if opts.dataFile != "" {
		data, err = config.LoadValues(opts.dataFile)
		if err != nil {
			return err
		}
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	html, err := renderer.RenderString(ctx, entry, data)
	if err != nil {
		return err
	}

	if opts.out == "" {
		_, err = io.WriteString(stdout, html)
		return err
	}

	if err := atomic.WriteFile(opts.out, strings.NewReader(html)); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.out, err)
	}
	logger.Info("page written", zap.String("path", opts.out), zap.Int("bytes", len(html)))
	return nil
}

func newRenderer(opts options, logger *zap.Logger) (*render.Renderer, error) {
	var defaults map[string]any
	if opts.defaultsFile != "" {
		var err error
		defaults, err = config.LoadValues(opts.defaultsFile)
		if err != nil {
			return nil, err
		}
	}

	renderOptions := []render.Option{render.WithLogger(logger)}
	if !opts.noCSS {
		var disabled []string
		if opts.cssDisabled != "" {
			disabled = strings.Split(opts.cssDisabled, ",")
		}
		renderOptions = append(renderOptions, render.WithTransformer(css.NewProcessor(css.Options{
			Stage:    opts.cssStage,
			Disabled: disabled,
		})))
	}

	return render.NewRenderer(render.Options{
		OpenBracket:   opts.open,
		CloseBracket:  opts.close,
		RootDir:       opts.root,
		PartialsDir:   opts.partials,
		DefaultValues: defaults,
		MaxDepth:      opts.maxDepth,
	}, renderOptions...)
}
