package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"c2fs/pkg/app"
	"c2fs/pkg/config"
	"c2fs/pkg/logging"
	"c2fs/pkg/remote"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgFile := flag.String("config", "", "config file (default is $HOME/.c2fs/config.yaml)")
	listen := flag.String("listen", "", "address to listen on (overrides server.listen)")
	desc := flag.String("descriptor", "", "descriptor to serve (overrides server.descriptor)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	if *listen != "" {
		viper.Set("server.listen", *listen)
	}
	if *desc != "" {
		viper.Set("server.descriptor", *desc)
	}
	cfg, err := config.Decode()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("❌ Logging error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("❌ %v", err)
	}
	fmt.Println("👋 Server stopped.")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Server.Descriptor == "" {
		return errors.New("server.descriptor is required")
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer application.Close()

	root, err := application.Factory.Resolve(ctx, cfg.Server.Descriptor)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}

	srv := remote.NewServer(root, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "🚀 Serving %s on %s...\n", cfg.Server.Descriptor, ln.Addr())
		return srv.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "\n⚠️  Shutting down server...")
		if err := srv.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
