package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"commbus/internal/config"
	"commbus/internal/logging"
	"commbus/internal/messaging"
	"commbus/internal/request"
)

func newSendCmd() *cobra.Command {
	var requestsPath string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Dispatch the requests of a YAML file and print the error events they cause",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logging.Init(cfg.Logging.Level, cfg.Logging.Format)

			f, err := os.Open(requestsPath)
			if err != nil {
				return fmt.Errorf("open requests: %w", err)
			}
			defer f.Close()
			descs, err := parseRequests(f)
			if err != nil {
				return err
			}

			n, err := runSend(cmd.Context(), cfg, descs, cmd.OutOrStdout(), logging.NewDefaultLogger())
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%d of %d requests failed", n, len(descs))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&requestsPath, "requests", "r", "", "YAML file with a list of request descriptions")
	_ = cmd.MarkFlagRequired("requests")
	return cmd
}

// parseRequests reads a YAML sequence of request descriptions.
func parseRequests(r io.Reader) ([]*request.Description, error) {
	var descs []*request.Description
	if err := yaml.NewDecoder(r).Decode(&descs); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("requests file is empty")
		}
		return nil, fmt.Errorf("parse requests: %w", err)
	}
	for i, d := range descs {
		if d == nil || d.URL == "" {
			return nil, fmt.Errorf("request %d: url is required", i)
		}
	}
	return descs, nil
}

// runSend dispatches descs through an in-process stack, waits for every
// call and writes each error event to out. It returns the number of error
// events seen.
func runSend(ctx context.Context, cfg *config.AppConfig, descs []*request.Description, out io.Writer, logger logging.Logger) (int, error) {
	// Hooks do not survive a wire bus, and nothing else should see one-shot traffic.
	local := *cfg
	local.Bus.Kind = "memory"
	local.Journal.Enabled = false
	local.Metrics.Enabled = false

	st, err := buildStack(&local, logger)
	if err != nil {
		return 0, err
	}
	defer func() { _ = st.close(context.Background()) }()

	var mu sync.Mutex
	count := 0
	sub, err := st.bus.Subscribe(st.interceptor.ErrorSubject(), func(_ context.Context, p any) error {
		msg, err := messaging.Decode[string](p)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		count++
		fmt.Fprintln(out, msg)
		return nil
	})
	if err != nil {
		return 0, err
	}
	defer sub.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	handles := make([]request.Handle, 0, len(descs))
	for _, d := range descs {
		d := d.Clone()
		var h request.Handle
		d.OnControl = func(handle request.Handle) { h = handle }
		if err := st.bus.Publish(ctx, st.interceptor.DispatchSubject(), d); err != nil {
			return 0, fmt.Errorf("dispatch %s: %w", d.URL, err)
		}
		if h == nil {
			return 0, fmt.Errorf("dispatch %s: no call handle", d.URL)
		}
		handles = append(handles, h)
	}

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			for _, c := range handles {
				c.Cancel()
			}
			return 0, ctx.Err()
		}
	}
	// Done closes after the failure callback has published.
	if err := st.transport.Shutdown(ctx); err != nil {
		return 0, err
	}

	mu.Lock()
	defer mu.Unlock()
	return count, nil
}
