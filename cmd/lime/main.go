// cmd/lime/main.go
package main

import (
	"fmt"
	"os"

	"github.com/mwiater/lime/internal/appconfig"
	lime "github.com/mwiater/lime/internal/cli"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/metrics"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	loadConfig     = appconfig.LoadConfig
	initLogging    = logging.Init
	closeLogging   = logging.Close
	getMetrics     = metrics.GetInstance
	setVersionInfo = lime.SetVersionInfo
	executeCmd     = lime.Execute
)

// main sets up logging and metrics from the configuration found on disk,
// then hands over to the cobra command tree. A configuration that does not
// load is reported again, with context, by the command itself.
func main() {
	cfg, err := loadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if err := initLogging(cfg.LogFilePath()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize logger: %v\n", err)
	}
	defer closeLogging()

	agg := getMetrics()
	if cfg.Metrics {
		agg.SetFilePath(cfg.MetricsFilePath())
	}
	defer agg.Close()

	setVersionInfo(version, commit, date)
	executeCmd()
}
