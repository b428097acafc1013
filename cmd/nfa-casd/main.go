// Command nfa-casd serves a CAS backend over gRPC so descriptor stores can
// be shared between hosts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/nfa/observability"
	"xdao.co/nfa/storage/casregistry"
	"xdao.co/nfa/storage/grpccas"

	_ "xdao.co/nfa/storage/localfs"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

// run parses args and serves until ctx ends. When ready is non-nil it
// receives the bound gRPC address once the listener is up.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, ready chan<- net.Addr) int {
	fs := pflag.NewFlagSet("nfa-casd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	listen := fs.String("listen", "127.0.0.1:7777", "gRPC listen address")
	metricsListen := fs.String("metrics-listen", "", "serve Prometheus metrics on this address (disabled when empty)")
	backend := fs.String("backend", "localfs", "CAS backend name")
	listBackends := fs.Bool("list-backends", false, "list supported backends and exit")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	log, err := observability.NewLogger("nfa-casd", version, stderr, *logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cas, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon)
	if err != nil {
		log.Error().Err(err).Str("backend", *backend).Msg("open backend")
		return 2
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				log.Warn().Err(err).Msg("close backend")
			}
		}()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error().Err(err).Msg("listen")
		return 1
	}

	metrics := observability.NewMetrics()
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor()))
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas, Logger: log})

	var metricsSrv *http.Server
	if *metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: *metricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		s.GracefulStop()
		if metricsSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(sctx)
		}
	}()

	log.Info().Str("addr", lis.Addr().String()).Str("backend", *backend).Str("metrics", *metricsListen).Msg("listening")
	if ready != nil {
		ready <- lis.Addr()
	}
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		log.Error().Err(err).Msg("serve")
		return 1
	}
	return 0
}
