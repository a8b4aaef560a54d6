// Command reportgen integrates a classified echogram into an acoustic
// report, appending to the report store named by OUTPUT_NAME.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/acoustic.report/internal/config"
	"github.com/banshee-data/acoustic.report/internal/monitoring"
	"github.com/banshee-data/acoustic.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "JSON report config; environment variables override it")
	envFile     = flag.String("env", ".env", "dotenv file loaded into the environment when present")
	metricsFile = flag.String("metrics-file", "", "write prometheus metrics to this node exporter textfile")
	showVersion = flag.Bool("version", false, "print the version and exit")
	migrate     = flag.String("migrate", "", "schema action on the report store (up, down, version) instead of a run")
	dbPath      = flag.String("db", "", "report store for -migrate; defaults to OUTPUT_NAME")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s built %s\n", version.String("reportgen"), version.BuildTime)
		return
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}

	if *migrate != "" {
		path := *dbPath
		if path == "" {
			path = os.Getenv("OUTPUT_NAME")
		}
		if err := RunMigrate(path, *migrate, os.Stdout, monitoring.Default()); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()
	res, err := Run(ctx, Options{
		ConfigPath: *configPath,
		Logf:       monitoring.Default(),
		Metrics:    metrics,
	})
	if *metricsFile != "" {
		if werr := metrics.WriteTextfile(*metricsFile); werr != nil {
			log.Printf("failed to write metrics: %v", werr)
		}
	}
	if err != nil {
		log.Fatalf("report failed: %v", err)
	}

	if res.Run != nil {
		log.Printf("done: mode=%s run=%s bins=%d exported=%d", res.Mode, res.Run.ID, res.Run.BinsWritten, len(res.Exported))
	} else {
		log.Printf("done: mode=%s", res.Mode)
	}
}
