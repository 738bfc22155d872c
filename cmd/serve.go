package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/panel"
	"github.com/sells-group/routemap/internal/render"
	"github.com/sells-group/routemap/internal/scan"
	"github.com/sells-group/routemap/internal/selection"
	"github.com/sells-group/routemap/internal/server"
	"github.com/sells-group/routemap/internal/store"
	"github.com/sells-group/routemap/pkg/routing"
)

var (
	servePort     int
	serveGeocoder string
	serveMode     string
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the map panel over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveMode != "" {
			cfg.Panel.Mode = serveMode
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "serve: open store")
		}
		defer st.Close() //nolint:errcheck

		// Scans run under gctx so a failed listener also stops them.
		g, gctx := errgroup.WithContext(ctx)

		broker := server.NewBroker()
		scene := render.NewScene()
		registry := selection.NewRegistry(scene, broker)
		scene.Bind(registry)
		scene.OnChange(broker.Invalidate)

		var session *panel.Session
		scheduler := scan.NewScheduler(
			newGeocoder(cfg.Geocode, serveGeocoder),
			newGrist(cfg.Grist),
			newRouter(cfg.Routing),
			scanConfig(cfg.Scan),
			scan.WithRouteHandler(func(id model.RecordID, s routing.Summary) {
				session.RecordRoute(id, s)
				broker.Invalidate()
			}),
		)

		mode, _ := model.ParseMode(cfg.Panel.Mode)
		session = panel.New(gctx, panel.Deps{
			Registry: registry,
			Surface:  scene,
			Scanner:  scheduler,
			Store:    st,
			Routes:   st,
			Notifier: broker,
		}, model.Options{
			Mode:         mode,
			MapSource:    cfg.Panel.MapSource,
			MapCopyright: cfg.Panel.MapCopyright,
		})
		if err := session.Ready(ctx); err != nil {
			return eris.Wrap(err, "serve: panel ready")
		}

		srvHandler := server.New(session, scene, broker, server.WithAllowedOrigins(cfg.Server.AllowedOrigins))
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srvHandler.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			return srvHandler.Watch(gctx)
		})
		g.Go(func() error {
			zap.L().Info("starting server",
				zap.Int("port", cfg.Server.Port),
				zap.String("session_id", session.ID()),
				zap.String("mode", string(mode)),
			)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()
		scheduler.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveGeocoder, "geocoder", "", "geocoding backend (default from config)")
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "initial display mode: single or multi (default from config)")
	rootCmd.AddCommand(serveCmd)
}
