// icn-dagsyncd serves a CAS backend over gRPC so remote peers can replicate
// DAG blocks. It is storage-only: verification always happens on the reader's
// side, so a daemon operated by an untrusted party can at worst withhold data.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"

	"github.com/InterCooperative-Network/icn-v2-sub001/storage/casregistry"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/grpccas"

	_ "github.com/InterCooperative-Network/icn-v2-sub001/storage/ipfs"
	_ "github.com/InterCooperative-Network/icn-v2-sub001/storage/localfs"
	_ "github.com/InterCooperative-Network/icn-v2-sub001/storage/rediscas"
)

func main() {
	fs := flag.NewFlagSet("icn-dagsyncd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	cas, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	fmt.Fprintf(os.Stderr, "icn-dagsyncd listening on %s (backend=%s)\n", lis.Addr().String(), *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
