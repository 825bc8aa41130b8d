package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/janhae4/DATN-sub006/internal/config"
	"github.com/janhae4/DATN-sub006/internal/history"
	"github.com/janhae4/DATN-sub006/internal/identity"
	"github.com/janhae4/DATN-sub006/internal/logging"
	"github.com/janhae4/DATN-sub006/internal/metrics"
	"github.com/janhae4/DATN-sub006/internal/registry"
	"github.com/janhae4/DATN-sub006/internal/server"
	"github.com/janhae4/DATN-sub006/internal/signaling"
)

func main() {
	logging.Init()

	var opts config.ServerOptions
	flag.StringVar(&opts.ListenAddr, "listen", "", "listen address (default :8080)")
	flag.IntVar(&opts.RoomCapacity, "capacity", 0, "room member ceiling (default 55)")
	flag.StringVar(&opts.RedisAddr, "redis", "", "identity directory redis address")
	flag.StringVar(&opts.AMQPURL, "amqp", "", "call-history broker URL")
	flag.Parse()

	cfg := config.LoadServer(opts)

	var provider identity.Provider
	if cfg.RedisAddr != "" {
		dir := identity.NewDirectory(cfg.RedisAddr)
		defer dir.Close()
		provider = dir
	}

	var recorder history.Recorder = history.Nop{}
	if cfg.AMQPURL != "" {
		rec, err := history.NewAMQPRecorder(cfg.AMQPURL, "call-history")
		if err != nil {
			slog.Error("failed to connect call-history broker", "err", err)
			os.Exit(1)
		}
		defer rec.Close()
		recorder = rec
	}

	reg := registry.New(cfg.RoomCapacity)
	m := metrics.New(prometheus.DefaultRegisterer)

	hub := signaling.NewHub(reg, m, recorder)
	go hub.Run()

	slog.Info("starting signaling server", "addr", cfg.ListenAddr, "capacity", cfg.RoomCapacity)
	if err := http.ListenAndServe(cfg.ListenAddr, server.NewMux(hub, provider)); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}
