package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/vetricore/autdhost/autd"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/logic"
	"github.com/vetricore/autdhost/transport"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "autd.yaml", "Path to the array config file.")
		mode       = pflag.StringP("mode", "m", "clear", "Demo routine to run: clear | firmware | geometry.")
		adapter    = pflag.StringP("adapter", "a", "", "Override the config file's EtherCAT interface name.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: autdctl [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	if *adapter != "" {
		cfg.Transport.Interface = *adapter
	}

	logger := log.Default()
	if cfg.LogLevel != "" {
		lvl, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			log.Fatal("parse log_level", "err", err)
		}
		logger.SetLevel(lvl)
	}

	geo := cfg.buildGeometry()

	if *mode == "geometry" {
		printGeometry(geo)
		return
	}

	tr, err := cfg.buildTransport(geo.NumDevices(), logger)
	if err != nil {
		log.Fatal("build transport", "err", err)
	}

	facade := autd.New(geo, tr, logic.DefaultConfig(), autd.WithLogger(logger))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := facade.Open(ctx); err != nil {
		log.Fatal("open", "err", err)
	}
	defer func() {
		if err := facade.Close(); err != nil {
			logger.Error("close", "err", err)
		}
	}()

	switch *mode {
	case "clear":
		if err := facade.Clear(); err != nil {
			log.Fatal("clear", "err", err)
		}
		logger.Info("clear acknowledged by all devices")
	case "firmware":
		infos, err := facade.FirmwareInfoList()
		if err != nil {
			log.Fatal("firmware info", "err", err)
		}
		for _, info := range infos {
			fmt.Println(info.String())
		}
	default:
		log.Fatal("unknown mode", "mode", *mode)
	}
}

func printGeometry(geo *geometry.Geometry) {
	fmt.Printf("devices: %d\n", geo.NumDevices())
	for i, dev := range geo.Devices() {
		fmt.Printf("  [%d] origin=%.2f,%.2f,%.2f\n", i, dev.Origin.X, dev.Origin.Y, dev.Origin.Z)
	}
}

// buildTransport resolves the transport.kind field in the config into
// a concrete transport.Transport, resolving an EtherCAT interface name
// to its kernel index the way net.InterfaceByName does for any other
// raw-socket consumer.
func (c *fileConfig) buildTransport(numDevices int, logger *log.Logger) (transport.Transport, error) {
	switch c.Transport.Kind {
	case "", "ethercat":
		iface, err := net.InterfaceByName(c.Transport.Interface)
		if err != nil {
			return nil, fmt.Errorf("resolve interface %q: %w", c.Transport.Interface, err)
		}
		interval := time.Duration(c.Transport.IntervalUS) * time.Microsecond
		if interval <= 0 {
			interval = time.Millisecond
		}
		return transport.NewEtherCATTransport(iface.Index, numDevices, interval, logger), nil
	case "ads":
		addr := c.Transport.Addr
		if !strings.Contains(addr, ":") {
			addr = fmt.Sprintf("%s:%d", addr, transport.AdsPort)
		}
		var netID transport.AmsNetId
		var err error
		if c.Transport.NetID != "" {
			netID, err = transport.ParseAmsNetId(c.Transport.NetID)
		} else {
			// No explicit NetId: derive it from the bridge's IPv4
			// address per the AMS convention.
			host, _, splitErr := net.SplitHostPort(addr)
			if splitErr != nil {
				host = addr
			}
			netID, err = transport.AmsNetIdFromIPv4(host)
		}
		if err != nil {
			return nil, err
		}
		return transport.NewADSTransport(addr, netID, numDevices), nil
	default:
		return nil, fmt.Errorf("unknown transport.kind %q", c.Transport.Kind)
	}
}
