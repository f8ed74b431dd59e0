package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SNU-SE/analysisq/internal/config"
	"github.com/SNU-SE/analysisq/internal/dto"
)

var apiBase string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "Submit and inspect paper analysis jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", "http://localhost:8080", "base URL of the analysis API")

	root.AddCommand(submitCmd(), statusCmd(), watchCmd(), cancelCmd(), retryCmd(), queueCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func submitCmd() *cobra.Command {
	var (
		paperID   string
		ownerID   string
		providers []string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a paper for analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(apiBase).submit(cmd.Context(), dto.AnalyzeRequest{
				PaperID:   paperID,
				OwnerID:   ownerID,
				Providers: providers,
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&paperID, "paper", "", "paper id to analyze")
	cmd.Flags().StringVar(&ownerID, "owner", "", "user id that owns the request")
	cmd.Flags().StringSliceVar(&providers, "providers", nil, "ai providers to run, comma separated")
	_ = cmd.MarkFlagRequired("paper")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("providers")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(apiBase).status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it reaches a terminal state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(apiBase)
			for {
				resp, err := client.status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				switch resp.Status {
				case string(config.JobStateCompleted), string(config.JobStateFailed), string(config.JobStateCancelled):
					return printJSON(resp)
				}
				fmt.Printf("%s progress=%d%% attempts=%d/%d\n",
					resp.Status, resp.Progress, resp.Attempts, resp.MaxAttempts)

				select {
				case <-time.After(interval):
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(apiBase).cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if resp.Cancelled {
				fmt.Println("cancellation requested")
			} else {
				fmt.Println("job already finished, nothing to cancel")
			}
			return nil
		},
	}
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Re-queue a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(apiBase).retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(resp.JobID)
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show queue depth by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(apiBase).queueStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
