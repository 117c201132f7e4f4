package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/imkarma/taskplan/internal/bus"
	"github.com/imkarma/taskplan/internal/dispatch"
	"github.com/imkarma/taskplan/internal/ingest"
	"github.com/imkarma/taskplan/internal/report"
	"github.com/imkarma/taskplan/internal/webhook"
)

var (
	serveAddr     string
	serveNATS     string
	serveNoWatch  bool
	serveImportOn bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept lifecycle events over HTTP webhooks and NATS",
	Long: `Starts the webhook server and, when configured, a NATS subscriber and
an ingest watcher that imports analysis files dropped into the ingest
directory. Stops cleanly on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveNATS, "nats", "", "NATS URL (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not watch the ingest directory")
	serveCmd.Flags().BoolVar(&serveImportOn, "import-existing", false, "Import files already in the ingest directory at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d := dispatch.New(
		dispatch.WithLogger(a.logger),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)),
	)
	dispatch.RegisterLifecycle(d, a.svc, report.New(a.repo))

	// NATS transport.
	natsURL := a.cfg.NATS.URL
	if serveNATS != "" {
		natsURL = serveNATS
	}
	if natsURL != "" {
		nc, err := nats.Connect(natsURL, nats.Name("taskplan"), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		sub := bus.NewSubscriber(nc, d,
			bus.WithPrefix(a.cfg.NATS.SubjectPrefix),
			bus.WithLogger(a.logger),
		)
		if err := sub.Start(); err != nil {
			return err
		}
		defer sub.Stop()
	}

	// Ingest watcher.
	if a.cfg.Ingest.Dir != "" && !serveNoWatch {
		if err := os.MkdirAll(a.cfg.Ingest.Dir, 0755); err != nil {
			return fmt.Errorf("create ingest dir: %w", err)
		}
		im := newImporter(a)
		if serveImportOn {
			if _, err := im.ImportAll(ctx, a.cfg.Ingest.Dir); err != nil {
				return err
			}
		}
		w, err := ingest.NewWatcher(im, a.cfg.Ingest.Dir, 0)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		go func() {
			for res := range w.Results() {
				if res.Err == nil {
					a.logger.Info("Plan ready", "path", res.Path, "plan_id", res.PlanID, "tasks", res.Tasks)
				}
			}
		}()
		defer w.Wait()
	}

	// Webhook transport.
	opts := []webhook.Option{webhook.WithLogger(a.logger)}
	if a.cfg.Server.Metrics {
		opts = append(opts, webhook.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	srv := webhook.NewServer(d, opts...)

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	start := time.Now()
	err = srv.Run(ctx, addr)
	stop()
	a.logger.Info("Server stopped", "uptime", time.Since(start).Round(time.Second))
	return err
}
