// Command backendcheck probes a storefront backend for the routes the location
// service depends on.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/samirrijal/pourzone/internal/adapters/backend"
	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/diagnostics"
	"github.com/samirrijal/pourzone/internal/pkg/config"
	"github.com/samirrijal/pourzone/internal/pkg/logging"
)

var (
	baseURL       string
	probeLat      float64
	probeLng      float64
	probeAddress  string
	radiusKm      float64
	stepTimeout   time.Duration
	stopOnFailure bool
	asJSON        bool
)

var rootCmd = &cobra.Command{
	Use:   "backendcheck",
	Short: "check a storefront backend for the pourzone location service",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run every diagnostic step against the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load("pourzone-backendcheck")
		if err != nil {
			return err
		}
		logging.Setup("pourzone-backendcheck", cfg.Log.Level, "text")

		if baseURL == "" {
			baseURL = cfg.Backend.BaseURL
		}
		client := backend.New(backend.Config{
			BaseURL:     baseURL,
			APIKey:      cfg.Backend.APIKey,
			Timeout:     cfg.Backend.Timeout(),
			MaxAttempts: 1,
		})
		probe := domain.Coordinate{Lat: probeLat, Lng: probeLng}
		if !probe.Valid() {
			return fmt.Errorf("invalid probe coordinate %f,%f", probeLat, probeLng)
		}

		runner := &diagnostics.Runner{
			Steps: []diagnostics.Step{
				diagnostics.Reachability(client, "/zones"),
				diagnostics.Zones(client),
				diagnostics.Coverage(client, probe),
				diagnostics.NearbyStores(client, probe, radiusKm),
				diagnostics.Geocode(client, probeAddress),
			},
			StopOnFailure: stopOnFailure,
			StepTimeout:   stepTimeout,
		}
		rep := runner.Run(cmd.Context())

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
		} else {
			printReport(rep)
		}
		if !rep.Passed {
			return fmt.Errorf("backend check failed")
		}
		return nil
	},
}

func printReport(rep diagnostics.Report) {
	fmt.Printf("%-14s %-6s %8s  %s\n", "STEP", "STATUS", "TIME", "DETAIL")
	for _, r := range rep.Results {
		status, detail := "ok", r.Detail
		switch {
		case r.Skipped:
			status = "skip"
		case !r.OK:
			status, detail = "FAIL", r.Error
		}
		fmt.Printf("%-14s %-6s %8s  %s\n", r.Name, status, r.Duration.Round(time.Millisecond), detail)
	}
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&baseURL, "base-url", "", "backend base URL (defaults to backend.base_url)")
	f.Float64Var(&probeLat, "lat", 37.7749, "probe latitude")
	f.Float64Var(&probeLng, "lng", -122.4194, "probe longitude")
	f.StringVar(&probeAddress, "address", "1 Market St, San Francisco, CA", "probe address for geocoding")
	f.Float64Var(&radiusKm, "radius-km", 2000, "nearby store search radius")
	f.DurationVar(&stepTimeout, "step-timeout", 15*time.Second, "timeout for each step")
	f.BoolVar(&stopOnFailure, "stop-on-failure", false, "skip the remaining steps after a failure")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")

	rootCmd.AddCommand(runCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
