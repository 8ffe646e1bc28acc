// Package main starts a stepflow server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/mobiq/stepflow/engine"
	enginehttp "github.com/mobiq/stepflow/engine/http"
	"github.com/mobiq/stepflow/exec"
	"github.com/mobiq/stepflow/exec/httpexec"
	httpsf "github.com/mobiq/stepflow/http"
	"github.com/mobiq/stepflow/logkeys"
	"github.com/mobiq/stepflow/subsystem/history"
	historyhttp "github.com/mobiq/stepflow/subsystem/history/http"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "stepflow"
	apiRealm    = "stepflow"
)

func main() {
	var (
		flDebug    = flag.Bool("debug", false, "log debug messages")
		flListen   = flag.String("listen", ":9004", "HTTP listen address")
		flVersion  = flag.Bool("version", false, "print version and exit")
		flAPIKey   = flag.String("api", "", "API key for API endpoints")
		flExecURL  = flag.String("exec-url", "", "URL of the step executor backend")
		flExecAPI  = flag.String("exec-api", "", "step executor backend API key")
		flDumpExec = flag.Bool("dump-exec", false, "dump step executor requests and responses")
		flDumpAPI  = flag.Bool("dump-api", false, "dump API request bodies")
		flStorage  = flag.String("storage", "file", "name of history storage backend")
		flDSN      = flag.String("storage-dsn", "", "data source name (e.g. connection string or path)")
		flDelaySec = flag.Uint("step-delay", uint(engine.DefaultStepDelay/time.Second), "delay between workflow steps in seconds")
		flRetain   = flag.Uint("retention-days", uint(history.DefaultRetention/(time.Hour*24)), "days of history to keep; 0 disables pruning")
		flPruneSec = flag.Uint("prune-interval", uint(history.DefaultDuration/time.Second), "interval for history pruning in seconds")
	)
	envflag.Parse("STEPFLOW_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	if *flExecURL == "" {
		logger.Info(logkeys.Error, "step executor URL required")
		os.Exit(1)
	}

	// configure storage
	storage, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	// configure our step executor backend i.e. how operations reach devices
	client, err := httpexec.New(*flExecURL, *flExecAPI)
	if err != nil {
		logger.Info(logkeys.Message, "creating exec client", logkeys.Error, err)
		os.Exit(1)
	}
	var runner exec.Runner = client
	if *flDumpExec {
		runner = exec.NewRunnerDumper(runner, os.Stdout)
	}

	// configure the workflow engine
	e := engine.New(
		runner,
		engine.WithLogger(logger.With("service", "engine")),
		engine.WithHistory(storage.history),
		engine.WithStepDelay(time.Second*time.Duration(*flDelaySec)),
	)

	// configure the history retention worker (async runner/job)
	var hWorker *history.Worker
	if *flRetain > 0 && *flPruneSec > 0 {
		hWorker = history.NewWorker(
			storage.history,
			history.WithWorkerLogger(logger.With("service", "history worker")),
			history.WithWorkerDuration(time.Second*time.Duration(*flPruneSec)),
			history.WithWorkerRetention(time.Hour*24*time.Duration(*flRetain)),
		)
	}

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})
			if *flDumpAPI {
				mux.Use(func(h http.Handler) http.Handler {
					return httpsf.DumpHandler(h, os.Stdout)
				})
			}

			enginehttp.HandleAPIv1("/v1", mux, logger, e)
			historyhttp.HandleAPIv1("/v1", mux, logger, storage.history)
		})
	}

	if hWorker != nil {
		go func() {
			err := hWorker.Run(context.Background())
			logs := []interface{}{logkeys.Message, "history worker stopped"}
			if err != nil {
				logger.Info(append(logs, logkeys.Error, err)...)
				return
			}
			logger.Debug(logs...)
		}()
	}

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
