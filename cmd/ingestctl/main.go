// Command ingestctl drives the operator IngestionService: rerun a stuck
// version, fail it by hand, or inspect its state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"artifact-review/internal/handler/ingestHandler"
)

const defaultAddr = "localhost:50051"

type dialFunc func(addr string) (grpc.ClientConnInterface, func() error, error)

func dial(addr string) (grpc.ClientConnInterface, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Close, nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, dial); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, connect dialFunc) error {
	var (
		addr    string
		token   string
		message string
		timeout time.Duration
	)
	flagSet := pflag.NewFlagSet("ingestctl", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", defaultAddr, "gRPC address of the artifact service")
	flagSet.StringVar(&token, "token", os.Getenv("OPERATOR_TOKEN"), "operator token (default $OPERATOR_TOKEN)")
	flagSet.StringVarP(&message, "message", "m", "", "error message recorded by fail")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) != 2 {
		printHelp(flagSet)
		return fmt.Errorf("expected a command and a version id")
	}
	if token == "" {
		return fmt.Errorf("operator token is required")
	}
	command, versionID := rest[0], rest[1]

	conn, closeConn, err := connect(addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer closeConn()
	client := ingestHandler.NewClient(conn)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", token)

	var resp any
	switch command {
	case "process":
		resp, err = client.Process(ctx, &ingestHandler.ProcessRequest{VersionID: versionID})
	case "fail":
		resp, err = client.Fail(ctx, &ingestHandler.FailRequest{VersionID: versionID, Message: message})
	case "status":
		resp, err = client.Status(ctx, &ingestHandler.StatusRequest{VersionID: versionID})
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ingestctl operates on archive ingestion jobs.

Usage:
  ingestctl [flags] process <version-id>
  ingestctl [flags] fail <version-id> [-m message]
  ingestctl [flags] status <version-id>

Flags:
%s`, flagSet.FlagUsages())
}
