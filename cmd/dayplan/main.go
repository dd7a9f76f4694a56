package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dayplan/internal/capture"
	"dayplan/internal/config"
	"dayplan/internal/dayview"
	"dayplan/internal/ics"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/render"
	"dayplan/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	date       string
	print      bool
	debug      bool
}

func main() {
	flags := parseFlags()
	appLog.Init(flags.debug)
	defer appLog.Sync()

	appLog.Info("dayplan starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	// CLI --listen overrides config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "timezone", conf.Timezone)
		loc = time.Local
	}

	date := flags.date
	if date == "" {
		date = time.Now().In(loc).Format(model.DateLayout)
	} else if _, err := time.Parse(model.DateLayout, date); err != nil {
		appLog.Error("invalid -date; want YYYY-MM-DD", err, "date", date)
		os.Exit(2)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"store", conf.Store.Driver,
		"refresh", conf.RefreshCron,
		"import_days", conf.ImportDays,
		"ics_count", len(conf.ICS),
		"window_start", conf.Window.StartHour,
		"window_end", conf.Window.EndHour,
		"once", flags.once,
		"print", flags.print,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, loc, flags, date); err != nil {
		appLog.Error("dayplan failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("dayplan exiting")
}

func run(ctx context.Context, conf *config.Config, loc *time.Location, flags flagConfig, date string) error {
	b, err := openBackends(ctx, conf)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.store.Close(closeCtx); err != nil {
			appLog.Error("failed to close store", err)
		}
	}()

	importer := &ics.Importer{
		Fetcher:  ics.NewFetcher(filepath.Join(conf.DataDir, "ics-cache")),
		Tasks:    b.store.Tasks(),
		OwnerID:  conf.OwnerID,
		Location: loc,
		Days:     conf.ImportDays,
	}
	cals := calendarsFromConfig(conf.ICS)

	if len(cals) > 0 {
		if _, err := importer.Run(ctx, cals); err != nil {
			// Partial failures leave the cached or previous data in place.
			appLog.Warn("initial ics import finished with errors", "err", err.Error())
		}
	}

	if flags.print {
		return printDay(ctx, os.Stdout, b.store.Tasks(), conf, date)
	}

	srv := web.NewServer(web.Deps{
		Config:      conf,
		Store:       b.store,
		Verifier:    b.verifier,
		PreviewPath: previewPath(conf),
	})

	if flags.once {
		return captureOnce(ctx, srv.OwnerHandler(conf.OwnerID), conf, date)
	}

	if len(cals) > 0 {
		if _, err := ics.Schedule(ctx, conf.RefreshCron, loc, importer, cals); err != nil {
			return err
		}
	}
	return serve(ctx, conf.Listen, srv.Handler())
}

func serve(ctx context.Context, addr string, h http.Handler) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("HTTP server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		appLog.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// captureOnce serves the day page on a loopback port just long enough for
// Chromium to screenshot it. h must not require credentials.
func captureOnce(ctx context.Context, h http.Handler, conf *config.Config, date string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("capture listener: %w", err)
	}
	httpSrv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = httpSrv.Serve(ln) }()
	defer httpSrv.Close()

	_, err = capture.CaptureDayPNG(ctx, capture.Options{
		URL:        fmt.Sprintf("http://%s/day?date=%s", ln.Addr().String(), date),
		OutputPath: previewPath(conf),
		Width:      int(render.LabelWidth + conf.Scale.TrackWidthPx),
		NoSandbox:  os.Geteuid() == 0,
	})
	return err
}

func printDay(ctx context.Context, w io.Writer, tasks taskLister, conf *config.Config, date string) error {
	list, err := tasks.ListByDate(ctx, conf.OwnerID, date)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	return render.Terminal(w, dayview.Build(date, list, dayview.OptionsFromConfig(conf)))
}

func previewPath(conf *config.Config) string {
	return filepath.Join(conf.DataDir, "preview.png")
}

func calendarsFromConfig(in []config.ICSConfig) []ics.Calendar {
	cals := make([]ics.Calendar, 0, len(in))
	for i, c := range in {
		if c.URL == "" {
			appLog.Warn("ics source without url; skipping", "index", i, "id", c.ID)
			continue
		}
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("ics%d", i+1)
		}
		cals = append(cals, ics.Calendar{ID: id, Name: c.Name, URL: c.URL})
	}
	return cals
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/dayplan/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Import, capture the day preview PNG and exit")
	flag.StringVar(&cfg.date, "date", "", "Day to render with -once or -print (YYYY-MM-DD, default today)")
	flag.BoolVar(&cfg.print, "print", false, "Print the day as a lane table and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging with the console encoder")

	flag.Parse()

	return cfg
}
