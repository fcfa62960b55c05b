package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
	"github.com/FlamingRiot/Uniray-sub000/internal/metrics"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the asset trees in sync with changes made outside the editor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			cfg.MetricsAddr = addr
		}

		w, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer w.Close()

		if cfg.MetricsAddr != "" {
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
			go func() {
				logging.Info("metrics listener started", zap.String("addr", cfg.MetricsAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logging.Error("metrics listener failed", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				srv.Shutdown(shutdownCtx)
			}()
		}

		return w.Watch(ctx)
	},
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func init() {
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (METRICS_ADDR)")
	rootCmd.AddCommand(watchCmd)
}
