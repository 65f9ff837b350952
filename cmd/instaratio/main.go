// Command instaratio crops images to social media aspect ratios. Without
// arguments it opens the desktop window; subcommands run the local web tool
// or crop from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"fyne.io/fyne/v2/app"

	"github.com/dixieflatline76/InstaRatio/config"
	"github.com/dixieflatline76/InstaRatio/pkg/api"
	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/dixieflatline76/InstaRatio/pkg/surface"
	"github.com/dixieflatline76/InstaRatio/ui"
	"github.com/dixieflatline76/InstaRatio/util"
	"github.com/dixieflatline76/InstaRatio/util/log"
)

const usage = `Usage: instaratio [command] [flags]

Commands:
  gui       open the desktop window (default)
  serve     run the browser tool on a loopback port
  crop      crop one image from the terminal
  presets   list the aspect ratio presets
  version   print the version and optionally check for updates
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "instaratio:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return runGUI()
	}
	switch args[0] {
	case "gui":
		return runGUI()
	case "serve":
		return runServe(args[1:])
	case "crop":
		return runCrop(args[1:], stdin, stdout)
	case "presets":
		return runPresets(stdout)
	case "version":
		return runVersion(args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("invalid command: %s\n\n%s", args[0], usage)
	}
}

// loadConfig reads the preferences shared by the CLI and the web tool.
func loadConfig() (*config.AppConfig, error) {
	path, err := config.DefaultPreferencesPath()
	if err != nil {
		return nil, err
	}
	prefs, err := config.LoadFilePreferences(path)
	if err != nil {
		return nil, err
	}
	return config.NewAppConfig(prefs), nil
}

func runGUI() error {
	ok, err := acquireLock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("another instance of %s is already running", config.AppName)
	}
	defer releaseLock()

	a := app.NewWithID(config.AppID)
	ia, err := ui.NewInstaRatioApp(a, config.NewAppConfig(a.Preferences()))
	if err != nil {
		return err
	}
	ia.Run()
	return nil
}

func runServe(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.GetServerAddr(), "listen address")
	smart := fs.Bool("smart", cfg.GetSmartPlacement(), "place the first crop box on faces or detail")
	maxConns := fs.Int("max-conns", api.DefaultMaxConns, "maximum concurrent connections")
	if err := fs.Parse(args); err != nil {
		return err
	}

	factory, err := surface.Configure(*smart, cfg.GetFaceModelPath())
	if err != nil {
		return err
	}
	srv, err := api.NewServer(api.Config{
		Factory: factory,
		SessionOptions: []crop.Option{
			crop.WithJPEGQuality(cfg.GetJPEGQuality()),
			crop.WithInitialPreset(cfg.GetDefaultPreset()),
		},
		MaxConns: *maxConns,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("%s %s listening on http://%s", config.AppName, config.AppVersion, *addr)
	return srv.Run(ctx, *addr)
}

func runPresets(stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRESET\tRATIO")
	for p := range preset.Builtin().List() {
		fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Ratio)
	}
	return tw.Flush()
}

func runVersion(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	check := fs.Bool("check", false, "check GitHub for a newer release")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s %s\n", config.AppName, config.AppVersion)
	if !*check {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res, err := util.CheckForUpdates(ctx, nil)
	if err != nil {
		return err
	}
	if res.UpdateAvailable {
		fmt.Fprintf(stdout, "Update available: %s (%s)\n", res.LatestVersion, res.ReleaseURL)
	} else {
		fmt.Fprintln(stdout, "You are running the latest version.")
	}
	return nil
}
