// WhatsApp voice bot server. Receives WhatsApp Business webhook events,
// answers incoming calls over WebRTC, and bridges the caller to the
// Gemini-powered assistant.
//
// Required environment variables:
//
//	WHATSAPP_TOKEN                        Business API access token
//	WHATSAPP_PHONE_NUMBER_ID              Business phone number ID
//	WHATSAPP_WEBHOOK_VERIFICATION_TOKEN   webhook verification token
//	GOOGLE_API_KEY                        Gemini API key
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

	"github.com/joho/godotenv"
	"github.com/voicebridge/voicebridge/pkg/bot"
	"github.com/voicebridge/voicebridge/pkg/server"
	"github.com/voicebridge/voicebridge/pkg/trace"
	"github.com/voicebridge/voicebridge/pkg/whatsapp"
)

func main() {
	host := flag.String("host", "localhost", "host to bind the HTTP server to")
	port := flag.Int("port", 7860, "port to bind the HTTP server to")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	flag.Parse()

	godotenv.Load()

	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	cfg := whatsapp.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(1)
	}
	if os.Getenv("GOOGLE_API_KEY") == "" {
		log.Println("GOOGLE_API_KEY environment variable is required")
		os.Exit(1)
	}

	if err := trace.Initialize(context.Background(), trace.DefaultConfig()); err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	client, err := whatsapp.NewClient(cfg)
	if err != nil {
		log.Fatalf("create WhatsApp client: %v", err)
	}

	botCfg := bot.DefaultConfig()
	if v := os.Getenv("GEMINI_VOICE"); v != "" {
		botCfg.Voice = v
	}
	if si := os.Getenv("SYSTEM_INSTRUCTION"); si != "" {
		botCfg.SystemInstruction = si
	}

	client.OnCallConnected(func(call *whatsapp.Call) {
		log.Printf("starting bot for call %s from %s", call.ID, whatsapp.FormatCallerNumber(call.From))
		bot.New(context.Background(), call.Connection, botCfg)
	})

	handler := server.NewWhatsAppHandler(client)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("WhatsApp webhook server listening on %s", addr)
		log.Println("press Ctrl+C to stop")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("received shutdown signal, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client.TerminateAllCalls(shutdownCtx)

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		log.Printf("trace shutdown: %v", err)
	}
	log.Println("server shutdown completed")
}
