package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/cmd/util"
	"github.com/mpapenbr/f1replay-service-go/pkg/config"
	"github.com/mpapenbr/f1replay-service-go/pkg/db/postgres"
	"github.com/mpapenbr/f1replay-service-go/pkg/endpoints/api"
	"github.com/mpapenbr/f1replay-service-go/pkg/endpoints/stream"
	pkgutils "github.com/mpapenbr/f1replay-service-go/pkg/utils"
)

const (
	defaultWaitTimeout  = 60 * time.Second
	defaultLoadTimeout  = 5 * time.Minute
	readHeaderTimeout   = 10 * time.Second
	shutdownGracePeriod = 10 * time.Second
)

func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the replay http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.ServerAddr,
		"addr",
		"a",
		"localhost:8000",
		"http server listen address")
	cmd.Flags().StringVar(&config.StaticDir,
		"static-dir",
		"static",
		"web root containing the images directory (empty disables static files)")
	cmd.Flags().StringVar(&config.LoadTimeout,
		"load-timeout",
		"5m",
		"max duration of a session load")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	return cmd
}

//nolint:funlen,cyclop // by design
func startServer(ctx context.Context) error {
	logger, err := config.SetupLogger(os.Stderr)
	if err != nil {
		return err
	}
	sqlLogger, err := config.NewLogger(os.Stderr, config.SQLLogLevel)
	if err != nil {
		return err
	}

	log.Debug("Config:",
		log.String("addr", config.ServerAddr),
		log.String("dataDir", config.DataDir),
		log.String("rawCache", config.RawCacheURL),
		log.String("upstream", config.UpstreamURL),
		log.String("nats", config.NatsURL),
		log.Int("frameRate", config.FrameRate),
	)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	if err := waitForRequiredServices(ctx); err != nil {
		log.Error("required services not ready", log.ErrorField(err))
		return err
	}

	var telemetry *config.Telemetry
	pgTraceOption := postgres.WithTracer(sqlLogger, log.DebugLevel)
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		if telemetry, err = config.SetupTelemetry(ctx); err == nil {
			pgTraceOption = postgres.WithOtlpTracer()
			defer telemetry.Shutdown()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	env, err := util.NewEnv(ctx,
		util.WithEventBroadcast(),
		util.WithPoolOptions(pgTraceOption))
	if err != nil {
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}
	defer env.Close()

	mux := registerHandlers(env, logger)
	var handler http.Handler = h2c.NewHandler(newCORS().Handler(mux), &http2.Server{})
	if telemetry != nil {
		handler = otelhttp.NewHandler(handler, "frs")
	}
	server := &http.Server{
		Addr:              config.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	setupGoRoutinesDump()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		log.Info("Starting http server", log.String("addr", config.ServerAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Debug("Shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", log.ErrorField(err))
		return err
	}
	log.Info("Server terminated")
	return nil
}

func registerHandlers(env *util.Env, logger *log.Logger) *http.ServeMux {
	loadTimeout, err := time.ParseDuration(config.LoadTimeout)
	if err != nil {
		log.Warn("Invalid duration value. Setting default",
			log.ErrorField(err), log.Duration("loadTimeout", defaultLoadTimeout))
		loadTimeout = defaultLoadTimeout
	}
	mux := http.NewServeMux()
	api.New(env.Service,
		api.WithStaticDir(config.StaticDir),
		api.WithLoadTimeout(loadTimeout),
		api.WithLogger(logger.Named("api")),
	).Register(mux)
	stream.New(env.Cache,
		stream.WithEvents(env.Events),
		stream.WithLogger(logger.Named("stream")),
	).Register(mux)
	return mux
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

// waitForRequiredServices checks the postgres raw cache, the NATS server and
// the upstream service if they are configured
func waitForRequiredServices(ctx context.Context) error {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = defaultWaitTimeout
	}

	g, gCtx := errgroup.WithContext(ctx)
	if addr := pkgutils.ExtractFromDBURL(config.RawCacheURL); addr != "" {
		g.Go(func() error { return pkgutils.WaitForTCP(gCtx, addr, timeout) })
	}
	if addr := pkgutils.ExtractFromNatsURL(config.NatsURL); addr != "" {
		g.Go(func() error { return pkgutils.WaitForTCP(gCtx, addr, timeout) })
	}
	if config.UpstreamURL != "" {
		g.Go(func() error {
			return pkgutils.WaitForHTTPResponse(gCtx, config.UpstreamURL, timeout)
		})
	}
	log.Debug("Waiting for connection checks to return")
	if err := g.Wait(); err != nil {
		return err
	}
	log.Debug("Required services are available")
	return nil
}

func newCORS() *cors.Cors {
	// browser clients may be served from a different origin than the api
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
			"X-Request-Id",
		},
		// FF caps this value at 24h, Chrome at 2h.
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
