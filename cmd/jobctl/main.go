// jobctl is the operator CLI for the job queue: inspect jobs, enqueue work
// by hand, and sweep stuck jobs without waiting for the worker's timer.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/queue"
)

var databaseURL string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Operate on the listing generation job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (defaults to DATABASE_URL)")

	root.AddCommand(statusCmd(), statsCmd(), enqueueCmd(), requeueStuckCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jobctl:", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*queue.Store, func(), error) {
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	runner := infra.NewSQLRunner(pool, logger)
	return queue.NewStore(runner, logger), pool.Close, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			job, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"job_id":        job.ID,
				"job_type":      job.Type,
				"status":        job.Status,
				"retry_count":   job.RetryCount,
				"max_retries":   job.MaxRetries,
				"error_message": job.ErrorMessage,
				"project_id":    job.ProjectID,
				"created_at":    job.CreatedAt,
				"processed_at":  job.ProcessedAt,
				"completed_at":  job.CompletedAt,
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <owner-id>",
		Short: "Show an owner's active job counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			pending, processing, err := store.CountActiveForOwner(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"pending": pending, "processing": processing})
		},
	}
}

func enqueueCmd() *cobra.Command {
	var (
		jobType    string
		ownerID    string
		projectID  string
		payload    string
		maxRetries int
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a job by hand",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := domain.JobType(jobType)
			switch t {
			case domain.JobTypeGenerateImage, domain.JobTypeGenerateAPlus, domain.JobTypeGeneratePack:
			default:
				return fmt.Errorf("unknown job type %q", jobType)
			}
			var body json.RawMessage
			if err := json.Unmarshal([]byte(payload), &body); err != nil {
				return fmt.Errorf("payload is not valid JSON: %w", err)
			}

			store, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			id, err := store.Enqueue(cmd.Context(), queue.EnqueueParams{
				Type:       t,
				Payload:    body,
				OwnerID:    ownerID,
				ProjectID:  projectID,
				MaxRetries: maxRetries,
			})
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"job_id": id, "status": string(domain.JobStatusPending)})
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "job type (generate-image, generate-aplus, generate-complete-pack)")
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner user id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&payload, "payload", "{}", "job payload as JSON")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retry budget (0 uses the default)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func requeueStuckCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "requeue-stuck",
		Short: "Sweep jobs stranded in processing back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := store.ReclaimStuck(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"reclaimed": n})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "minimum time in processing before a job counts as stuck")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			if err := infra.RunMigrations(databaseURL); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}
