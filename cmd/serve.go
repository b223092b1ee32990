package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/rangeget/internal/flakyserver"
	"github.com/tanq16/rangeget/internal/output"
	"github.com/tanq16/rangeget/internal/utils"
	"github.com/tanq16/rangeget/internal/verifier"
)

func newServeCmd() *cobra.Command {
	var listen, file, size string
	var opts flakyserver.Options

	cmd := &cobra.Command{
		Use:   "serve [--listen ADDR] [--threshold BYTES] [--fail-rate F]",
		Short: "Serve a payload over HTTP, truncating large responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("error reading payload: %w", err)
				}
				payload = data
			} else {
				n, err := utils.ParseSize(size)
				if err != nil {
					return err
				}
				payload = flakyserver.RandomPayload(int(n), opts.Seed)
			}
			server := &http.Server{
				Addr:              listen,
				Handler:           flakyserver.New(payload, opts),
				ReadHeaderTimeout: 5 * time.Second,
			}
			output.PrintHeader(fmt.Sprintf("Serving %s on http://%s/", utils.FormatBytes(uint64(len(payload))), listen))
			output.PrintDetail("SHA-256 " + verifier.Sum(payload))

			ctx, stop := signalContext()
			defer stop()
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe()
			}()
			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
				log.Info().Str("op", "cmd/serve").Msg("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "Address to listen on")
	cmd.Flags().StringVar(&file, "file", "", "Serve this file instead of random bytes")
	cmd.Flags().StringVar(&size, "size", "1MiB", "Size of the random payload")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "Seed for the random payload and truncation")
	cmd.Flags().Int64Var(&opts.Threshold, "threshold", 32*1024, "Truncate responses larger than this many bytes (0 disables)")
	cmd.Flags().Float64Var(&opts.TruncateRate, "truncate-rate", 0, "Fraction of large responses to truncate (0 truncates all)")
	cmd.Flags().Float64Var(&opts.FailRate, "fail-rate", 0, "Fraction of requests answered with 503")
	return cmd
}
