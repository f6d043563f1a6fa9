package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatwidget "github.com/MegaGrindStone/chatwidget"
	"github.com/MegaGrindStone/chatwidget/internal/handlers"
	"github.com/MegaGrindStone/chatwidget/internal/render"
	"github.com/MegaGrindStone/chatwidget/internal/services"
	"github.com/MegaGrindStone/chatwidget/internal/transport"
	"github.com/MegaGrindStone/chatwidget/internal/widget"
)

func main() {
	cfgPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := cfg.logger()
	if err != nil {
		log.Fatal(err)
	}

	boltDB, err := services.NewBoltDB(cfg.StorePath)
	if err != nil {
		panic(err)
	}

	defaultMode := cfg.DefaultMode
	savedMode, err := boltDB.Mode(context.Background())
	if err != nil {
		logger.Warn("Failed to load saved mode", slog.String("err", err.Error()))
	}
	if savedMode != "" {
		defaultMode = savedMode
	}

	renderer := render.New(cfg.CodeStyle)
	var codeCSS bytes.Buffer
	if err := renderer.CSS(&codeCSS); err != nil {
		panic(fmt.Errorf("error generating code stylesheet: %w", err))
	}

	ws := transport.NewWebSocket(cfg.transport(), logger)
	wdg, err := widget.New(widget.Config{
		Modes:       cfg.Modes,
		DefaultMode: defaultMode,
	}, ws, renderer, logger)
	if err != nil {
		panic(err)
	}

	m, err := handlers.NewMain(wdg, boltDB, codeCSS.Bytes(), logger)
	if err != nil {
		panic(err)
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := wdg.Initialize(connectCtx); err != nil {
		logger.Error("Backend is unreachable, the widget stays disconnected",
			slog.String("url", cfg.BackendURL),
			slog.String("err", err.Error()))
	}
	connectCancel()

	// Serve static files
	staticFS, err := fs.Sub(chatwidget.StaticFS, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/static/css/chroma.css", m.HandleCodeCSS)
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/clear", m.HandleClear)
	mux.HandleFunc("/voice", m.HandleVoice)
	mux.HandleFunc("/sse/messages", m.HandleSSE)

	// Create custom server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
		if err := wdg.Close(); err != nil {
			logger.Error("Failed to close widget", slog.String("err", err.Error()))
		}
		if err := boltDB.Close(); err != nil {
			logger.Error("Failed to close store", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}
