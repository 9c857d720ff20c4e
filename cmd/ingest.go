package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/services/ingestion"
)

// ingestCmd runs one ingestion in the foreground
var ingestCmd = &cobra.Command{
	Use:   "ingest [object-key]",
	Short: "Ingest an archive from the object store",
	Long: `Ingest a dataset archive that is already in the object store and wait for
the result, without starting the API server.

Pass the object key of an uploaded archive, or --dataset to ingest the last
source archive of an existing dataset again.

Example:
  dataset-importer ingest uploads/6f1c.../coco128.zip
  dataset-importer ingest --dataset 6f1c...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("dataset", "", "re-ingest the dataset with this id")
}

func runIngest(cmd *cobra.Command, args []string) error {
	datasetID, _ := cmd.Flags().GetString("dataset")
	if (len(args) == 0) == (datasetID == "") {
		return fmt.Errorf("pass either an object key or --dataset")
	}

	cfg, closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ing, err := ingestOne(ctx, app, args, datasetID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingestion:  %s\n", ing.ID)
	fmt.Fprintf(out, "Dataset:    %s\n", ing.DatasetID)
	fmt.Fprintf(out, "Stage:      %s\n", ing.Stage)
	fmt.Fprintf(out, "Accepted:   %d\n", ing.ImagesAccepted)
	fmt.Fprintf(out, "Rejected:   %d\n", ing.ImagesRejected)
	fmt.Fprintf(out, "Flagged:    %d\n", ing.ImagesFlagged)
	if ing.Stage == models.StageFailed {
		return fmt.Errorf("ingestion failed (%s): %s", ing.ErrorKind, ing.Error)
	}
	return nil
}

// ingestOne triggers an ingestion and processes its queue job in the foreground
func ingestOne(ctx context.Context, app *application, args []string, datasetID string) (*models.IngestionJob, error) {
	var (
		ing *models.IngestionJob
		err error
	)
	if datasetID != "" {
		ing, err = app.ingestion.Reingest(ctx, datasetID)
	} else {
		ing, err = app.ingestion.Trigger(ctx, ingestion.UploadCompletion{ObjectKey: args[0], Source: "cli"})
	}
	if err != nil {
		return nil, err
	}

	if ing.QueueJobID != nil {
		job, err := app.jobs.GetJob(ctx, *ing.QueueJobID)
		if err != nil {
			return nil, fmt.Errorf("failed to load queue job: %w", err)
		}
		if err := app.processor.ProcessJob(ctx, job); err != nil {
			if failErr := app.jobs.FailJob(ctx, job.ID, err); failErr != nil {
				return nil, fmt.Errorf("ingestion error: %v (failed to record job failure: %w)", err, failErr)
			}
		}
	} else if _, err := app.ingestion.Run(ctx, ing.ID, nil); err != nil {
		return nil, err
	}

	return app.ingestion.GetIngestion(ctx, ing.ID)
}
