// Command crusader-server runs the Crusader measurement server: the
// control-channel accept loop, the shared UDP latency/discovery
// responder, and (optionally) a peer-latency listener (§4.6, §4.7, §6).
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/richb-hanover/crusader/internal/iface"
	"github.com/richb-hanover/crusader/pkg/peerlatency"
	"github.com/richb-hanover/crusader/pkg/server"
)

var (
	flagAddr     = flag.String("addr", ":9090", "Listen address for the control channel, UDP latency channel, and discovery")
	flagPeerAddr = flag.String("peer-addr", "", "Listen address for the peer-latency sub-protocol; empty disables it")
	flagVerbose  = flag.Bool("verbose", false, "Enable debug logging")
	flagListIf   = flag.Bool("list-interfaces", false, "List local network interfaces and exit")
)

func main() {
	flag.Parse()

	if *flagListIf {
		ifs, err := iface.ListInterfaces()
		rtx.Must(err, "failed to enumerate interfaces")
		for _, i := range ifs {
			log.Info("interface", "name", i.Name, "addr", i.Addr)
		}
		return
	}

	if *flagVerbose {
		log.SetLevel(log.DebugLevel)
	}
	log.SetReportTimestamp(true)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tcpAddr, err := net.ResolveTCPAddr("tcp", *flagAddr)
	rtx.Must(err, "failed to resolve %s", *flagAddr)
	tcpListener, err := net.ListenTCP("tcp", tcpAddr)
	rtx.Must(err, "failed to listen on %s", *flagAddr)

	udpAddr, err := net.ResolveUDPAddr("udp", *flagAddr)
	rtx.Must(err, "failed to resolve %s", *flagAddr)
	udpConn, err := net.ListenUDP("udp", udpAddr)
	rtx.Must(err, "failed to listen on %s", *flagAddr)

	srv := server.New(tcpListener, udpConn)
	log.Info("listening", "addr", *flagAddr)

	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error("server exited", "err", err)
		}
	}()

	if *flagPeerAddr != "" {
		peerListener, err := net.Listen("tcp", *flagPeerAddr)
		rtx.Must(err, "failed to listen on %s", *flagPeerAddr)
		peer := peerlatency.NewPeer()
		log.Info("listening for peer-latency sessions", "addr", *flagPeerAddr)
		go func() {
			if err := peer.Serve(ctx, peerListener); err != nil {
				log.Error("peer-latency listener exited", "err", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	cancel()
}
