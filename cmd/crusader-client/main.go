// Command crusader-client runs one Crusader test against a server and
// writes the resulting .crr file (§4.5, §6).
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/rtx"
	"github.com/richb-hanover/crusader/pkg/client"
	"github.com/richb-hanover/crusader/pkg/result"
)

var (
	flagServer          = flag.String("server", "", "Server address, host:port; required (this CLI does not run discovery)")
	flagPeerServer      = flag.String("latency-peer-server", "", "Optional peer-latency server address, host:port")
	flagDownload        = flag.Bool("download", true, "Measure download throughput")
	flagUpload          = flag.Bool("upload", false, "Measure upload throughput")
	flagBidirectional   = flag.Bool("bidirectional", false, "Run download and upload simultaneously rather than sequentially")
	flagStreams         = flag.Uint("streams", 3, "Number of parallel streams per direction")
	flagStreamStagger   = flag.Duration("stream-stagger", 0, "Delay between dialing successive streams")
	flagLoadDuration    = flag.Duration("load-duration", 10*time.Second, "Duration of the load window")
	flagGraceDuration   = flag.Duration("grace-duration", 1*time.Second, "Duration of each grace window flanking the load window")
	flagLatencyInterval = flag.Duration("latency-interval", 100*time.Millisecond, "UDP latency probe interval")
	flagThroughputIntvl = flag.Duration("throughput-interval", 200*time.Millisecond, "Throughput sample interval")
	flagBindInterface   = flag.String("bind-interface", "", "Name of the local interface to bind sockets to; empty lets the kernel choose")
	flagOutput          = flag.String("output", "", "Path to write the .crr result to; empty skips writing")
	flagZstd            = flag.Bool("zstd", true, "Compress the .crr output with zstd")
	flagVerbose         = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *flagVerbose {
		log.SetLevel(log.DebugLevel)
	}
	log.SetReportTimestamp(true)

	if *flagServer == "" {
		log.Fatal("discovery is not wired into this CLI yet; -server is required")
	}

	server, err := parseEndpoint(*flagServer)
	rtx.Must(err, "invalid -server")

	cfg := client.Config{
		Server:                   server,
		Download:                 *flagDownload,
		Upload:                   *flagUpload,
		Bidirectional:            *flagBidirectional,
		Streams:                  uint32(*flagStreams),
		StreamStagger:            *flagStreamStagger,
		LoadDuration:             *flagLoadDuration,
		GraceDuration:            *flagGraceDuration,
		LatencySampleInterval:    *flagLatencyInterval,
		ThroughputSampleInterval: *flagThroughputIntvl,
		BindInterface:            *flagBindInterface,
	}
	if *flagPeerServer != "" {
		peer, err := parseEndpoint(*flagPeerServer)
		rtx.Must(err, "invalid -latency-peer-server")
		cfg.LatencyPeerServer = &peer
	}

	ctx := context.Background()
	engine, err := client.New(ctx, cfg)
	rtx.Must(err, "failed to connect to %s", *flagServer)

	res, err := engine.Run(ctx)
	rtx.Must(err, "test run failed")

	log.Info("test complete",
		"latency_samples", len(res.Latency),
		"throughput_samples", len(res.Throughput),
		"partial", res.Partial,
		"late_start", res.LateStart,
	)

	if *flagOutput != "" {
		codec := result.CodecNone
		if *flagZstd {
			codec = result.CodecZstd
		}
		data, err := result.Save(res, codec)
		rtx.Must(err, "failed to encode result")
		rtx.Must(os.WriteFile(*flagOutput, data, 0o644), "failed to write %s", *flagOutput)
		log.Info("result written", "path", *flagOutput)
	}
}

func parseEndpoint(s string) (result.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return result.Endpoint{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return result.Endpoint{}, err
	}
	return result.Endpoint{Host: host, Port: uint16(port)}, nil
}
