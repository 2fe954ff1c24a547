// Command skctl is an operator client that checks the health of a socialkeeper server.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcserver "github.com/and161185/socialkeeper/internal/server/grpc"
)

type dialOptions struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
	timeout   time.Duration
}

type healthReport struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Checked string `json:"checked_at"`
}

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(o dialOptions) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if !o.plaintext {
		var err error
		if creds, err = loadTLS(o.caPath, o.insecure); err != nil {
			return nil, err
		}
	}
	return grpc.NewClient(o.addr, grpc.WithTransportCredentials(creds))
}

func check(ctx context.Context, client healthpb.HealthClient, service string) (healthReport, error) {
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthReport{}, err
	}
	return healthReport{
		Service: service,
		Status:  resp.GetStatus().String(),
		Checked: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	var o dialOptions

	root := &cobra.Command{
		Use:          "skctl",
		Short:        "socialkeeper operator client",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&o.addr, "addr", "localhost:8443", "server address")
	flags.StringVar(&o.caPath, "ca", "", "CA certificate (PEM)")
	flags.BoolVar(&o.insecure, "insecure", false, "skip TLS verification")
	flags.BoolVar(&o.plaintext, "plaintext", false, "connect without TLS")
	flags.DurationVar(&o.timeout, "timeout", 10*time.Second, "per-check timeout")

	var service string
	health := &cobra.Command{
		Use:   "health",
		Short: "Check the datastore health status",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := dial(o)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			rep, err := check(ctx, healthpb.NewHealthClient(conn), service)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), rep)
			if rep.Status != healthpb.HealthCheckResponse_SERVING.String() {
				return fmt.Errorf("%s is %s", service, rep.Status)
			}
			return nil
		},
	}
	health.Flags().StringVar(&service, "service", grpcserver.ServiceName, "health service name")

	root.AddCommand(health)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
