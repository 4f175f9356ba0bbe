package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"runtime"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/googleapis/google-cloud-go-testing/bigquery/bqiface"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/uploader"
	"github.com/mozdata/lookgen/config"
	"github.com/mozdata/lookgen/output"
	"github.com/mozdata/lookgen/pipeline"
	"github.com/mozdata/lookgen/schema"
)

var (
	project    string
	listenAddr string
	bucket     string
	outputDir  string

	configFile = flagx.File{}
	mainCtx    = context.Background()
)

func init() {
	flag.StringVar(&listenAddr, "listenaddr", ":8080", "Address to listen on")
	flag.StringVar(&project, "project", "mozdata",
		"GCP Project ID to run schema queries in")
	flag.StringVar(&bucket, "bucket", "",
		"GCS bucket to write the looker-hub tree to; empty writes locally")
	flag.StringVar(&outputDir, "output", "looker-hub",
		"Local output directory, used when -bucket is empty")
	flag.Var(&configFile, "config", "JSON configuration file")
}

func makeHTTPServer(listenAddr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:    listenAddr,
		Handler: h,
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.LUTC | log.Lshortfile | log.LstdFlags)
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	// Try parsing provided config file.
	var conf config.Config
	err := json.Unmarshal(configFile.Get(), &conf)
	rtx.Must(err, "cannot parse configuration file")

	bqClient, err := bigquery.NewClient(mainCtx, project)
	rtx.Must(err, "error initializing BQ client")

	var writer output.Writer
	if bucket != "" {
		gcsClient, err := storage.NewClient(mainCtx)
		rtx.Must(err, "error initializing GCS client")
		writer = output.NewGCSWriter(
			uploader.New(stiface.AdaptClient(gcsClient), bucket))
	} else {
		writer = output.NewLocalWriter(mainCtx, outputDir)
	}

	inspector := schema.NewBigQuery(bqiface.AdaptClient(bqClient))
	generator := pipeline.NewGenerator(inspector, writer, conf)

	// Initialize mux.
	mux := http.NewServeMux()
	mux.Handle("/v0/generate", pipeline.NewHandler(generator))

	log.Printf("GOMAXPROCS is %d", runtime.GOMAXPROCS(0))

	// Start main HTTP server.
	s := makeHTTPServer(listenAddr, mux)
	rtx.Must(httpx.ListenAndServeAsync(s), "Could not start HTTP server")
	defer s.Close()

	// Start Prometheus server for monitoring.
	promServer := prometheusx.MustServeMetrics()
	defer promServer.Close()

	// Keep serving until the context is canceled.
	<-mainCtx.Done()
}
