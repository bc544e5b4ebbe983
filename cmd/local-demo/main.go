// Local voice bot demo with a browser UI. No WhatsApp required: open
// http://localhost:7860 and talk to the assistant over WebRTC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "embed"

	"github.com/joho/godotenv"
	"github.com/voicebridge/voicebridge/pkg/bot"
	"github.com/voicebridge/voicebridge/pkg/connection"
	"github.com/voicebridge/voicebridge/pkg/server"
	"github.com/voicebridge/voicebridge/pkg/trace"
)

//go:embed index.html
var indexHTML []byte

func main() {
	host := flag.String("host", "localhost", "host to bind the HTTP server to")
	port := flag.Int("port", 7860, "port to bind the HTTP server to")
	rtcPort := flag.Int("rtc-udp-port", 9000, "UDP port for WebRTC media")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	flag.Parse()

	godotenv.Load()

	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	if os.Getenv("GOOGLE_API_KEY") == "" {
		log.Println("GOOGLE_API_KEY environment variable is required")
		log.Println("set it in your .env file or export it:")
		log.Println("  export GOOGLE_API_KEY='your-api-key-here'")
		os.Exit(1)
	}

	if err := trace.Initialize(context.Background(), trace.DefaultConfig()); err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	rtcServer := server.NewWebRTCServer(&server.WebRTCConfig{
		RTCUDPPort:  *rtcPort,
		STUNServers: []string{"stun:stun.l.google.com:19302"},
	})
	if err := rtcServer.Start(); err != nil {
		log.Fatalf("start WebRTC server: %v", err)
	}

	botCfg := bot.DefaultConfig()
	if v := os.Getenv("GEMINI_VOICE"); v != "" {
		botCfg.Voice = v
	}
	if si := os.Getenv("SYSTEM_INSTRUCTION"); si != "" {
		botCfg.SystemInstruction = si
	}

	rtcServer.OnConnectionCreated(func(ctx context.Context, conn connection.Connection) {
		log.Printf("starting bot for peer %s", conn.PeerID())
		b := bot.New(context.Background(), conn, botCfg)
		go func() {
			<-b.Done()
			rtcServer.RemovePeer(conn.PeerID())
		}()
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})
	mux.HandleFunc("/api/offer", rtcServer.HandleOffer)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("local demo server listening on http://%s", addr)
		log.Printf("open your browser and navigate to: http://%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	rtcServer.Close()
	if err := trace.Shutdown(shutdownCtx); err != nil {
		log.Printf("trace shutdown: %v", err)
	}
	log.Println("server stopped")
}
