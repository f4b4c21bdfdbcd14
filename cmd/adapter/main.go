package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	napv1 "github.com/nupi-ai/nupi/api/nap/v1"

	"github.com/nupi-ai/plugin-tts-podcast/internal/adapterinfo"
	"github.com/nupi-ai/plugin-tts-podcast/internal/api"
	"github.com/nupi-ai/plugin-tts-podcast/internal/app"
	"github.com/nupi-ai/plugin-tts-podcast/internal/config"
	"github.com/nupi-ai/plugin-tts-podcast/internal/server"
	"github.com/nupi-ai/plugin-tts-podcast/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// lazyTTSServer wraps a TextToSpeechServiceServer and allows deferred initialization.
// It returns Unavailable errors until the underlying server is set via setServer.
type lazyTTSServer struct {
	napv1.UnimplementedTextToSpeechServiceServer
	server atomic.Pointer[napv1.TextToSpeechServiceServer]
}

func (l *lazyTTSServer) setServer(srv napv1.TextToSpeechServiceServer) {
	l.server.Store(&srv)
}

func (l *lazyTTSServer) StreamSynthesis(req *napv1.StreamSynthesisRequest, stream napv1.TextToSpeechService_StreamSynthesisServer) error {
	srv := l.server.Load()
	if srv == nil {
		return status.Error(codes.Unavailable, "podcast service is initializing, please retry in a moment")
	}
	return (*srv).StreamSynthesis(req, stream)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogLevel, os.Stdout)
	logger.Info("starting adapter",
		"adapter", adapterinfo.Info.Name,
		"adapter_slug", adapterinfo.Info.Slug,
		"adapter_version", adapterinfo.Version(),
		"listen_addr", cfg.ListenAddr,
		"http_addr", cfg.HTTPAddr,
		"synthesizer", cfg.Synthesizer,
		"host_voice", cfg.HostVoiceID,
		"guest_voice", cfg.GuestVoiceID,
		"concurrency", cfg.Concurrency,
		"stub_generator", cfg.UseStubGenerator,
	)

	recorder := telemetry.NewRecorder(logger)

	// Bind first so the manager sees the port open while backends initialize.
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to bind listener", "error", err)
		os.Exit(1)
	}
	logger.Info("listener bound, port ready", "addr", lis.Addr().String())

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)

	serviceName := napv1.TextToSpeechService_ServiceDesc.ServiceName
	setServing := func(s healthgrpc.HealthCheckResponse_ServingStatus) {
		healthServer.SetServingStatus("", s)
		healthServer.SetServingStatus(serviceName, s)
	}
	setServing(healthgrpc.HealthCheckResponse_NOT_SERVING)

	lazyService := &lazyTTSServer{}
	napv1.RegisterTextToSpeechServiceServer(grpcServer, lazyService)

	serverErr := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serverErr <- err
		}
	}()
	logger.Info("gRPC server started (NOT_SERVING while initializing)")

	comps, err := app.Build(cfg, logger, recorder)
	if err != nil {
		logger.Error("failed to initialize pipeline", "error", err)
		grpcServer.Stop()
		lis.Close()
		os.Exit(1)
	}

	lazyService.setServer(server.New(cfg, logger, comps.Pipeline, recorder))
	setServing(healthgrpc.HealthCheckResponse_SERVING)
	logger.Info("adapter ready to serve requests")

	var httpServer *http.Server
	if cfg.HTTPEnabled() {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.New(comps.Pipeline, cfg.CORSOrigin, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP API listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	exitCode := 0
	select {
	case err := <-serverErr:
		logger.Error("server terminated with error", "error", err)
		exitCode = 1
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}

	shutdown(logger, grpcServer, httpServer, setServing, comps.Close)
	lis.Close()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	logger.Info("adapter stopped")
}

// shutdown stops both servers and then releases the synthesizer backend.
func shutdown(logger *slog.Logger, grpcServer *grpc.Server, httpServer *http.Server, setServing func(healthgrpc.HealthCheckResponse_ServingStatus), release func() error) {
	setServing(healthgrpc.HealthCheckResponse_NOT_SERVING)
	defer func() {
		if err := release(); err != nil {
			logger.Warn("failed to close synthesizer backend", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("HTTP shutdown incomplete", "error", err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		logger.Warn("graceful stop timed out, forcing stop")
		grpcServer.Stop()
	}
}
