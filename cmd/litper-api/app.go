package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/litperpro/litper/internal/broker/kafka"
	"github.com/litperpro/litper/internal/broker/messages"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type apiOpts struct {
	grpcAddr string
	httpAddr string

	topic         string
	consumerGroup string

	onListen func(grpcAddr, httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// runAPI поднимает HTTP API, gRPC health и консьюмер shipment.checked; возвращается при отмене ctx
// или падении любого из серверов.
func runAPI(ctx context.Context, opts apiOpts, handler http.Handler, consumer kafkaConsumer,
	onChecked func(ctx context.Context, m messages.ShipmentChecked) error) error {
	grpcLis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	if opts.onListen != nil {
		opts.onListen(grpcLis.Addr().String(), httpLis.Addr().String())
	}

	hs := health.NewServer()

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- runGRPCServer(ctx, grpcLis, hs)
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, httpLis, handler)
	}()

	if consumer != nil && onChecked != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			err := consumer.Consume(ctx, kafka.JSONHandler(ctx, onChecked))
			if err != nil && ctx.Err() == nil {
				slog.Error("kafka consumer stopped", "topic", opts.topic, "error", err.Error())
				hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-grpcErr:
		if err == nil {
			err = ctx.Err()
		}
		return err
	case err := <-httpErr:
		if err == nil {
			err = ctx.Err()
		}
		return err
	}
}

func runGRPCServer(ctx context.Context, lis net.Listener, hs *health.Server) error {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			s.Stop()
		}
		_ = lis.Close()
	}()

	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	return s.Serve(lis)
}

func runHTTPServer(ctx context.Context, lis net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP API listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
