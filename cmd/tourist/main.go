// tourist project main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/kleinnic74/tourist/app"
	"bitbucket.org/kleinnic74/tourist/logging"

	"go.uber.org/zap"
)

var options app.Options

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&options.LibDir, "l", "tourist", "Path to the photo cache directory")
	flag.UintVar(&options.Port, "p", 8080, "HTTP port to listen on")
	flag.StringVar(&options.APIKey, "k", os.Getenv("FLICKR_API_KEY"), "Flickr API key (defaults to FLICKR_API_KEY)")
	flag.StringVar(&options.SearchURL, "u", "", "Base URL of the photo search service")
	flag.Parse()
	if options.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Missing API key: pass -k or set FLICKR_API_KEY")
		flag.Usage()
		os.Exit(1)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.From(ctx)
	a, err := app.NewApp(ctx, options)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	a.Run(ctx)
}
