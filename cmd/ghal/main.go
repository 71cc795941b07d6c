package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mastercactapus/ghal/hal"
	"github.com/mastercactapus/ghal/vfd"
	"github.com/sirupsen/logrus"
)

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("load .env: %v", err)
	}

	axes := flag.String("axes", "xyzbc", "Axis labels, one character each.")
	period := flag.Duration("period", time.Millisecond, "Control loop period.")
	addr := flag.String("addr", ":9092", "Address to bind the HTTP server to.")
	vfdPort := flag.String("vfd-port", "", "Serial port of the spindle VFD. Empty disables polling.")
	vfdBaud := flag.Int("vfd-baud", 38400, "Baud rate of the VFD link.")
	logLevel := flag.String("log-level", envDefault("LOG_LEVEL", "info"), "Log level.")
	flag.Parse()

	logger := hal.NewLogger(*logLevel)

	m, err := newMachine(*axes, logger)
	if err != nil {
		logger.Fatal(err)
	}

	if *vfdPort != "" {
		cfg := vfd.DefaultConfig()
		cfg.Port = *vfdPort
		cfg.Baud = *vfdBaud
		sp, err := vfd.Open(cfg, logrus.NewEntry(logger).WithField("component", "vfd"))
		if err != nil {
			logger.Fatal(err)
		}
		sp.Start()
		defer sp.Close()
		m.spindle = sp
	}

	runner := hal.NewRunner(*period, logrus.NewEntry(logger).WithField("component", "loop"))
	m.register(runner)
	go func() {
		if err := runner.Run(context.Background()); err != nil && err != context.Canceled {
			logger.Fatalf("control loop: %v", err)
		}
	}()

	api := newAPI(m, logrus.NewEntry(logger).WithField("component", "api"))

	logger.Infof("listening on %s", *addr)
	err = http.ListenAndServe(*addr, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		logger.Debugf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		api.ServeHTTP(w, req)
	}))
	if err != nil {
		logger.Fatal(err)
	}
}
