package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/fieldray/fieldray/web/server"
)

func main() {
	port := flag.Int("port", 8080, "port to serve on")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	webServer := server.NewServer(*port, logger)
	logger.Info().Int("port", *port).Msg("field renderer web server")

	if err := webServer.Start(); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
