// Command nearlist is the nearlist operations CLI.
//
// Usage:
//
//	nearlist simulate --stores locationLists.json --track walk.json
//	nearlist simulate --stores locationLists.json --track walk.json --cooldowns sim.db --all
//	nearlist stores list --lat 37.77 --lng -122.42
//	nearlist stores import --file locationLists.json
//	nearlist cooldown show --store 1718000000000
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/nearlist/internal/config"
	"github.com/albapepper/nearlist/internal/cooldown"
	"github.com/albapepper/nearlist/internal/db"
	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/notifications"
	"github.com/albapepper/nearlist/internal/simulate"
	"github.com/albapepper/nearlist/internal/stores"
	"github.com/albapepper/nearlist/internal/zone"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "nearlist",
		Short: "nearlist operations CLI",
	}

	root.AddCommand(simulateCmd())
	root.AddCommand(storesCmd())
	root.AddCommand(cooldownCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// simulate command
// --------------------------------------------------------------------------

func simulateCmd() *cobra.Command {
	var (
		storesFile, trackFile, cooldownPath string
		all                                 bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a recorded track through a fresh engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := stores.NewFile(storesFile).Stores(cmd.Context())
			if err != nil {
				return err
			}
			track, err := simulate.LoadTrack(trackFile)
			if err != nil {
				return err
			}
			samples, err := track.Samples(time.Now().UTC())
			if err != nil {
				return err
			}

			var cooldowns notifications.CooldownStore = cooldown.NewMemory()
			if cooldownPath != "" {
				sqlite, err := cooldown.OpenSQLite(cooldownPath)
				if err != nil {
					return err
				}
				defer sqlite.Close()
				cooldowns = sqlite
			}

			steps := simulate.Run(cmd.Context(), samples, snapshot, cooldowns, logger)
			return printSteps(cmd.OutOrStdout(), steps, all)
		},
	}
	cmd.Flags().StringVar(&storesFile, "stores", "locationLists.json", "Stores export file")
	cmd.Flags().StringVar(&trackFile, "track", "", "Track file (JSON array of points)")
	cmd.Flags().StringVar(&cooldownPath, "cooldowns", "", "SQLite cooldown file (default: in memory)")
	cmd.Flags().BoolVar(&all, "all", false, "Also print samples that changed nothing")
	cmd.MarkFlagRequired("track")
	return cmd
}

func printSteps(out io.Writer, steps []simulate.Step, all bool) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIME\tEVENT\tSTORE\tDISTANCE\tNOTIFICATION")
	for _, s := range steps {
		if s.Event.Kind == zone.NoOp && !all {
			continue
		}
		note := "-"
		switch {
		case s.Err != nil:
			note = "error: " + s.Err.Error()
		case s.Command != nil:
			note = s.Command.Title + " | " + s.Command.Body
		case s.Event.Kind == zone.Enter || s.Event.Kind == zone.Leave:
			note = "(suppressed)"
		}
		dist := "-"
		if s.Event.Kind != zone.NoOp {
			dist = geo.FormatDistance(s.Event.DistanceMeters)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.Index, s.Sample.Timestamp.Format(time.TimeOnly), s.Event.Kind, s.Event.Store.Name, dist, note)
	}
	return tw.Flush()
}

// --------------------------------------------------------------------------
// stores command
// --------------------------------------------------------------------------

func storesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stores",
		Short: "Inspect and load geofenced stores",
	}
	cmd.AddCommand(storesListCmd())
	cmd.AddCommand(storesImportCmd())
	return cmd
}

func storesListCmd() *cobra.Command {
	var (
		lat, lng float64
		file     string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the store snapshot, optionally with distances from a point",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config) error {
				var provider stores.Provider
				switch {
				case file != "" || !cfg.HasDatabase():
					if file == "" {
						file = cfg.StoresFile
					}
					provider = stores.NewFile(file)
				default:
					pool, err := db.New(ctx, cfg)
					if err != nil {
						return fmt.Errorf("connect to database: %w", err)
					}
					defer pool.Close()
					provider = stores.NewPostgres(pool.Pool)
				}

				snapshot, err := provider.Stores(ctx)
				if err != nil {
					return err
				}
				var from *geo.Coordinate
				if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
					from = &geo.Coordinate{Latitude: lat, Longitude: lng}
					if !from.Valid() {
						return fmt.Errorf("invalid --lat/--lng %s", from)
					}
				}
				return printStores(cmd.OutOrStdout(), snapshot, from)
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude to measure distances from")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude to measure distances from")
	cmd.Flags().StringVar(&file, "file", "", "Read this export file instead of the configured source")
	return cmd
}

func printStores(out io.Writer, snapshot []zone.Store, from *geo.Coordinate) error {
	matches := make([]zone.Match, 0, len(snapshot))
	for _, s := range snapshot {
		m := zone.Match{Store: s}
		if from != nil {
			m.DistanceMeters = geo.Distance(*from, s.Coordinate)
		}
		matches = append(matches, m)
	}
	if from != nil {
		zone.SortByDistance(matches)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRADIUS\tOPEN ITEMS\tDISTANCE")
	for _, m := range matches {
		dist := "-"
		if from != nil {
			dist = geo.FormatDistance(m.DistanceMeters)
			if m.DistanceMeters <= m.Store.TriggerRadiusMeters {
				dist += " (inside)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%sm\t%d\t%s\n",
			m.Store.ID, m.Store.Name, fmt.Sprint(m.Store.TriggerRadiusMeters), m.Store.ItemCount, dist)
	}
	return tw.Flush()
}

func storesImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a stores export file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config) error {
				if !cfg.HasDatabase() {
					return fmt.Errorf("DATABASE_URL is required")
				}
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				pool, err := db.New(ctx, cfg)
				if err != nil {
					return fmt.Errorf("connect to database: %w", err)
				}
				defer pool.Close()

				start := time.Now()
				result, err := stores.Import(ctx, pool.Pool, data)
				if err != nil {
					return err
				}
				for _, e := range result.Errors {
					logger.Error("import error", "error", e)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s in %s\n", result.Summary(), time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "locationLists.json", "Stores export file")
	return cmd
}

// --------------------------------------------------------------------------
// cooldown command
// --------------------------------------------------------------------------

func cooldownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Inspect notification cooldowns",
	}
	cmd.AddCommand(cooldownShowCmd())
	return cmd
}

func cooldownShowCmd() *cobra.Command {
	var storeID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show both cooldown records for a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if storeID == "" {
				return fmt.Errorf("--store is required")
			}
			return run(func(ctx context.Context, cfg *config.Config) error {
				var cooldowns notifications.CooldownStore
				if cfg.HasDatabase() {
					pool, err := db.New(ctx, cfg)
					if err != nil {
						return fmt.Errorf("connect to database: %w", err)
					}
					defer pool.Close()
					cooldowns = cooldown.NewPostgres(pool.Pool)
				} else {
					sqlite, err := cooldown.OpenSQLite(cfg.SQLitePath)
					if err != nil {
						return err
					}
					defer sqlite.Close()
					cooldowns = sqlite
				}
				return printCooldowns(ctx, cmd.OutOrStdout(), cooldowns, storeID, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&storeID, "store", "", "Store ID")
	return cmd
}

func printCooldowns(ctx context.Context, out io.Writer, cooldowns notifications.CooldownStore, storeID string, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLAST FIRED\tREMAINING")
	for _, kind := range []notifications.Kind{notifications.Arrival, notifications.Departure} {
		at, ok, err := cooldowns.Get(ctx, storeID, kind)
		if err != nil {
			return err
		}
		key := notifications.CooldownKey(storeID, kind)
		if !ok {
			fmt.Fprintf(tw, "%s\tnever\t-\n", key)
			continue
		}
		remaining := "ready"
		if left := kind.Cooldown() - now.Sub(at); left > 0 {
			remaining = left.Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, at.Local().Format(time.DateTime), remaining)
	}
	return tw.Flush()
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// run handles config loading and context cancellation.
func run(fn func(ctx context.Context, cfg *config.Config) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return fn(ctx, cfg)
}
