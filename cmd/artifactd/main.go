// Command artifactd serves an artifact store over gRPC so model binaries
// can live on dedicated storage hosts instead of the gateway.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"tensormart.io/market/artifact"
	"tensormart.io/market/artifact/kubo"
	"tensormart.io/market/artifact/localfs"
	"tensormart.io/market/artifact/remote"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listen  string
		backend string
		dir     string
		maxMsg  int
	)

	root := &cobra.Command{
		Use:           "artifactd",
		Short:         "Artifact store daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var store artifact.Store
			switch backend {
			case "localfs":
				store, err = localfs.New(dir)
				if err != nil {
					return err
				}
			case "kubo":
				store = kubo.New(kubo.Options{})
			default:
				return fmt.Errorf("unknown backend %q", backend)
			}

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			srv := grpc.NewServer(
				grpc.MaxRecvMsgSize(maxMsg),
				grpc.MaxSendMsgSize(maxMsg),
			)
			remote.RegisterArtifactStoreServer(srv, &remote.Server{Store: store})
			log.Info("artifact daemon listening",
				zap.String("addr", listen),
				zap.String("backend", backend))
			return srv.Serve(lis)
		},
	}

	root.Flags().StringVar(&listen, "listen", "127.0.0.1:7443", "listen address")
	root.Flags().StringVar(&backend, "backend", "localfs", "store backend: localfs or kubo")
	root.Flags().StringVar(&dir, "dir", "./artifacts", "root directory for the localfs backend")
	root.Flags().IntVar(&maxMsg, "max-msg-bytes", 512<<20, "max gRPC message size")
	return root
}
