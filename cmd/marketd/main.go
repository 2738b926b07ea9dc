// Command marketd runs the marketplace API gateway.
//
// Configuration is read from flags, the environment (MARKET_ prefix) and
// an optional config file, in the usual viper precedence order.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tensormart.io/market/admission"
	"tensormart.io/market/artifact"
	"tensormart.io/market/artifact/kubo"
	"tensormart.io/market/artifact/localfs"
	"tensormart.io/market/artifact/remote"
	"tensormart.io/market/captoken"
	"tensormart.io/market/entitle"
	"tensormart.io/market/gateway"
	"tensormart.io/market/inference"
	"tensormart.io/market/ledger"
	ledgerrpc "tensormart.io/market/ledger/rpc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "marketd",
		Short:         "AI model marketplace gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}

	flags := serve.Flags()
	flags.String("config", "", "optional config file")
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("base-url", "http://localhost:8080", "public base URL for issued download links")
	flags.String("rpc-url", "https://api.devnet.solana.com", "ledger RPC endpoint")
	flags.String("program-id", "8g37Z8wZR9xMaHQRP8W8FzWqAj1A8VRt2c4t6LnBqAyb", "marketplace program address")
	flags.String("jwt-secret", "", "token signing secret (required)")
	flags.Duration("rate-window", admission.DefaultWindow, "admission window length")
	flags.Int("rate-ceiling", admission.DefaultCeiling, "requests per identity per window")
	flags.String("artifact-backend", "localfs", "artifact store backend: localfs, kubo or remote")
	flags.String("artifact-dir", "./artifacts", "root directory for the localfs backend")
	flags.String("artifact-remote", "127.0.0.1:7443", "address of the remote artifact daemon")
	flags.String("inference-url", "", "inference runner base URL (empty disables inference)")
	_ = v.BindPFlags(flags)

	root.AddCommand(serve)
	return root
}

func runServe(v *viper.Viper) error {
	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return errors.New("jwt-secret is required")
	}

	program, err := ledger.ParseAddress(v.GetString("program-id"))
	if err != nil {
		return fmt.Errorf("program-id: %w", err)
	}

	reader := ledgerrpc.New(v.GetString("rpc-url"), program, ledgerrpc.Options{})
	evaluator := entitle.New(program, reader, entitle.Options{Logger: log})
	controller := admission.New(v.GetDuration("rate-window"), v.GetInt("rate-ceiling"))

	signer, err := captoken.NewSigner([]byte(secret), captoken.Options{})
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(v)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer func() { _ = closeStore() }()
	}

	var runner inference.Runner
	if url := v.GetString("inference-url"); url != "" {
		runner = inference.NewHTTPRunner(url, inference.HTTPOptions{})
	}

	srv := gateway.New(gateway.Config{
		Program:   program,
		Reader:    reader,
		Evaluator: evaluator,
		Admission: controller,
		Signer:    signer,
		Store:     store,
		Runner:    runner,
		Logger:    log,
		BaseURL:   strings.TrimRight(v.GetString("base-url"), "/"),
	})

	httpSrv := &http.Server{
		Addr:              v.GetString("listen"),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening",
			zap.String("addr", httpSrv.Addr),
			zap.String("program", program.String()))
		errCh <- httpSrv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openStore(v *viper.Viper) (artifact.Store, func() error, error) {
	switch backend := v.GetString("artifact-backend"); backend {
	case "localfs":
		s, err := localfs.New(v.GetString("artifact-dir"))
		return s, nil, err
	case "kubo":
		return kubo.New(kubo.Options{}), nil, nil
	case "remote":
		c, err := remote.Dial(v.GetString("artifact-remote"), remote.DialOptions{
			Timeout:     10 * time.Second,
			MaxMsgBytes: 512 << 20,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown artifact backend %q", backend)
	}
}
