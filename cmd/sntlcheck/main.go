// sntlcheck is a demo CLI exercising the sntl translator against an
// in-memory fake NvmeTransport: it builds a synthetic Identify Controller/
// Namespace, dispatches a handful of representative SCSI commands through
// sntl.Translate, and prints the resulting sense data. It gives the
// translator package a runnable example without requiring a real NVMe
// device.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	sntl "github.com/coreos/go-sntl"
	"github.com/coreos/go-sntl/sntlmetrics"
)

var log = logrus.New()

func main() {
	opcode := flag.String("opcode", "inquiry", "command to issue: inquiry, readcap, tur, logsense")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address instead of exiting after one command")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	reg := prometheus.NewRegistry()
	metrics := sntlmetrics.NewMetrics(reg)

	fake := newFakeTransport()
	transport := sntlmetrics.InstrumentedTransport{Next: fake, Metrics: metrics}

	ctx := &sntl.DeviceCtx{
		Transport:             transport,
		Nsid:                  1,
		DescriptorSenseFormat: true,
		CommandTimeout:        5 * time.Second,
	}

	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Infof("serving metrics on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Fatalf("metrics server: %v", err)
		}
		return
	}

	io_ := buildCommand(*opcode)
	if io_ == nil {
		fmt.Fprintf(os.Stderr, "unknown -opcode %q\n", *opcode)
		os.Exit(2)
	}

	if err := sntl.Translate(ctx, io_); err != nil {
		log.Fatalf("translate: %v", err)
	}
	printResult(io_)
}

func buildCommand(name string) *sntl.ScsiIo {
	switch name {
	case "inquiry":
		return &sntl.ScsiIo{
			CDB:       []byte{0x12, 0x00, 0x00, 0x00, 96, 0x00},
			Direction: sntl.DirIn,
			Data:      make([]byte, 96),
			Sense:     make([]byte, 96),
		}
	case "readcap":
		cdb := make([]byte, 16)
		cdb[0] = 0x9e
		cdb[1] = 0x10 // SERVICE ACTION: READ CAPACITY(16)
		binary.BigEndian.PutUint32(cdb[10:14], 32)
		return &sntl.ScsiIo{
			CDB:       cdb,
			Direction: sntl.DirIn,
			Data:      make([]byte, 32),
			Sense:     make([]byte, 96),
		}
	case "tur":
		return &sntl.ScsiIo{
			CDB:       []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			Direction: sntl.DirNone,
			Sense:     make([]byte, 96),
		}
	case "logsense":
		cdb := []byte{0x4d, 0x00, 0x0d, 0x00, 0x00, 0x00, 0x00, 0x00, 64, 0x00}
		return &sntl.ScsiIo{
			CDB:       cdb,
			Direction: sntl.DirIn,
			Data:      make([]byte, 64),
			Sense:     make([]byte, 96),
		}
	default:
		return nil
	}
}

func printResult(io_ *sntl.ScsiIo) {
	key := io_.Sense[2] & 0x0f
	if io_.Sense[0]&0x7f >= 0x72 { // descriptor format: key in byte 1
		key = io_.Sense[1] & 0x0f
	}
	if io_.Sense[0] != 0 && key != 0 {
		fmt.Printf("CHECK CONDITION: sense=% x\n", io_.Sense)
		return
	}
	fmt.Printf("GOOD: data=% x\n", io_.Data)
}
