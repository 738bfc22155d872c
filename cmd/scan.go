package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/scan"
	"github.com/sells-group/routemap/internal/store"
	"github.com/sells-group/routemap/pkg/routing"
)

var (
	scanTable    string
	scanGeocoder string
	scanMapping  map[string]string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Geocode a table's missing positions once and exit",
	Long:  "Fetches every record of a table from the host API, geocodes records whose coordinates are missing or stale and writes the results back.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scan"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "scan"), zap.String("table", scanTable))

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "scan: open store")
		}
		defer st.Close() //nolint:errcheck

		host := newGrist(cfg.Grist)
		raw, err := host.FetchRecords(ctx, scanTable)
		if err != nil {
			return eris.Wrap(err, "scan: fetch records")
		}
		if len(raw) == 0 {
			fmt.Println("No records found")
			return nil
		}

		mapping, err := overrideMapping(raw[0], scanMapping)
		if err != nil {
			return err
		}
		records := model.MapRecords(raw, mapping)

		scheduler := scan.NewScheduler(
			newGeocoder(cfg.Geocode, scanGeocoder),
			host,
			newRouter(cfg.Routing),
			scanConfig(cfg.Scan),
			scan.WithRouteHandler(func(id model.RecordID, s routing.Summary) {
				if err := st.SaveRoute(ctx, scanTable, id, s); err != nil {
					log.Warn("save route failed", zap.String("record_id", id.String()), zap.Error(err))
				}
			}),
		)

		log.Info("starting scan", zap.Int("records", len(records)))
		stats, err := scheduler.Run(ctx, scan.Batch{TableID: scanTable, Records: records, Mapping: mapping})
		fmt.Printf("records=%d geocoded=%d writes=%d routes=%d\n", stats.Records, stats.Geocoded, stats.Writes, stats.Routes)
		if err != nil {
			return eris.Wrap(err, "scan")
		}
		return nil
	},
}

// overrideMapping lays the --map overrides over the role-named defaults so
// a partial override still leaves every other role mapped.
func overrideMapping(sample model.Record, overrides map[string]string) (model.FieldMapping, error) {
	known := make(map[model.Role]bool)
	for _, ep := range model.Endpoints() {
		for _, role := range append(ep.Required(), ep.Optional()...) {
			known[role] = true
		}
	}

	m := model.DefaultMapping(sample, nil)
	for role, col := range overrides {
		if !known[role] {
			return nil, eris.Errorf("scan: unknown role %q in --map", role)
		}
		m[role] = col
	}
	return m, nil
}

func init() {
	scanCmd.Flags().StringVar(&scanTable, "table", "", "host table id")
	scanCmd.Flags().StringVar(&scanGeocoder, "geocoder", "", "geocoding backend (default from config)")
	scanCmd.Flags().StringToStringVar(&scanMapping, "map", nil, "role=column overrides, e.g. AddressDepart=Origin")
	_ = scanCmd.MarkFlagRequired("table")
	rootCmd.AddCommand(scanCmd)
}
