package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/routemap/pkg/geocode"
)

var (
	geocodeBackend     string
	geocodeRate        float64
	geocodeConcurrency int
	geocodeFormat      string
)

// geocodeRow is one line of geocode command output.
type geocodeRow struct {
	Address   string  `yaml:"address"`
	Latitude  float64 `yaml:"latitude,omitempty"`
	Longitude float64 `yaml:"longitude,omitempty"`
	Quality   string  `yaml:"quality,omitempty"`
	Source    string  `yaml:"source,omitempty"`
	Error     string  `yaml:"error,omitempty"`
}

var geocodeCmd = &cobra.Command{
	Use:   "geocode [address...]",
	Short: "Geocode addresses with the configured backend",
	Long:  "Geocodes the addresses given as arguments, or one per line on stdin, and prints the coordinates found.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addresses := args
		if len(addresses) == 0 {
			var err error
			addresses, err = readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
		}
		if len(addresses) == 0 {
			return eris.New("geocode: no addresses given")
		}

		client := newGeocoder(cfg.Geocode, geocodeBackend)
		rows, failed := geocodeAll(ctx, client, addresses, geocodeRate, geocodeConcurrency)

		if err := printGeocodeRows(cmd.OutOrStdout(), rows, geocodeFormat); err != nil {
			return err
		}
		zap.L().Info("geocode complete",
			zap.Int("addresses", len(addresses)),
			zap.Int64("failed", failed),
		)
		return ctx.Err()
	},
}

// geocodeAll resolves addresses concurrently, pacing requests at perSecond.
// Rows keep input order; failures are reported per row.
func geocodeAll(ctx context.Context, client geocode.Client, addresses []string, perSecond float64, concurrency int) ([]geocodeRow, int64) {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	rows := make([]geocodeRow, len(addresses))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, address := range addresses {
		g.Go(func() error {
			rows[i].Address = address
			if err := limiter.Wait(gctx); err != nil {
				failed.Add(1)
				rows[i].Error = err.Error()
				return nil
			}
			res, err := client.Geocode(gctx, address)
			if err != nil {
				failed.Add(1)
				rows[i].Error = err.Error()
				if !errors.Is(err, geocode.ErrNotFound) {
					zap.L().Warn("geocode failed", zap.String("address", address), zap.Error(err))
				}
				return nil // keep going
			}
			rows[i].Latitude = res.Latitude
			rows[i].Longitude = res.Longitude
			rows[i].Quality = res.Quality
			rows[i].Source = res.Source
			return nil
		})
	}
	_ = g.Wait()
	return rows, failed.Load()
}

func printGeocodeRows(w io.Writer, rows []geocodeRow, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return eris.Wrap(err, "geocode: encode yaml")
		}
		return enc.Close()
	case "text", "":
		for _, r := range rows {
			if r.Error != "" {
				fmt.Fprintf(w, "%s\terror: %s\n", r.Address, r.Error)
				continue
			}
			fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%s\n", r.Address, r.Latitude, r.Longitude, r.Quality)
		}
		return nil
	default:
		return eris.Errorf("geocode: unknown format %q", format)
	}
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "geocode: read input")
	}
	return out, nil
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeBackend, "geocoder", "", "geocoding backend (default from config)")
	geocodeCmd.Flags().Float64Var(&geocodeRate, "rate", 1, "requests per second, 0 for unlimited")
	geocodeCmd.Flags().IntVar(&geocodeConcurrency, "concurrency", 1, "parallel requests")
	geocodeCmd.Flags().StringVar(&geocodeFormat, "format", "text", "output format: text or yaml")
	rootCmd.AddCommand(geocodeCmd)
}
