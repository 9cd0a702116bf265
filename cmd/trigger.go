package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cli "github.com/spf13/cobra"

	"github.com/odpf/tablevault/cmd/logger"
	"github.com/odpf/tablevault/config"
	"github.com/odpf/tablevault/core/pipeline"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/core/run"
	"github.com/odpf/tablevault/ext/pubsub"
)

const triggerTimeout = 30 * time.Second

// triggerCommand mints a fresh run id and publishes a dispatch message, the
// same message the heartbeat scheduler produces. It is the manual entry
// point for ad-hoc and rehearsal runs.
func triggerCommand() *cli.Command {
	var (
		configDirPath   string
		foldersInclude  []string
		projectsInclude []string
		projectsExclude []string
		datasetsInclude []string
		datasetsExclude []string
		tablesInclude   []string
		tablesExclude   []string
		forceRun        bool
		dryRun          bool
	)

	cmd := &cli.Command{
		Use:     "trigger",
		Short:   "Publishes a backup run over the given scope",
		Example: "tablevault trigger --projects my-project --force",
	}

	cmd.Flags().StringVarP(&configDirPath, "config", "c", ".", "Directory holding the server configuration file")
	cmd.Flags().StringSliceVar(&foldersInclude, "folders", nil, "Folder ids to enumerate projects from")
	cmd.Flags().StringSliceVar(&projectsInclude, "projects", nil, "Projects to include")
	cmd.Flags().StringSliceVar(&projectsExclude, "exclude-projects", nil, "Projects to exclude, literal or regex: rules")
	cmd.Flags().StringSliceVar(&datasetsInclude, "datasets", nil, "Datasets to include as project.dataset")
	cmd.Flags().StringSliceVar(&datasetsExclude, "exclude-datasets", nil, "Datasets to exclude, literal or regex: rules")
	cmd.Flags().StringSliceVar(&tablesInclude, "tables", nil, "Tables to include as project.dataset.table")
	cmd.Flags().StringSliceVar(&tablesExclude, "exclude-tables", nil, "Tables to exclude, literal or regex: rules")
	cmd.Flags().BoolVar(&forceRun, "force", false, "Back up every table in scope regardless of its cron")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Walk the pipeline without creating snapshots or writing tags")

	cmd.RunE = func(c *cli.Command, args []string) error {
		l := logger.NewDefaultLogger()

		conf, err := config.LoadServerConfig(configDirPath)
		if err != nil {
			return err
		}

		scope := resource.Scope{
			FoldersInclude:  foldersInclude,
			ProjectsInclude: projectsInclude,
			ProjectsExclude: projectsExclude,
			DatasetsInclude: datasetsInclude,
			DatasetsExclude: datasetsExclude,
			TablesInclude:   tablesInclude,
			TablesExclude:   tablesExclude,
		}
		if scope.IsEmpty() {
			return fmt.Errorf("nothing to trigger, give at least one include flag")
		}

		kind := run.KindHeartbeat
		if forceRun {
			kind = run.KindForced
		}
		if dryRun {
			kind = run.KindDryRun
		}
		runID := run.NewID(time.Now().UTC(), kind)

		payload, err := json.Marshal(pipeline.DispatchRequest{
			RunID:      runID.String(),
			Scope:      scope,
			IsForceRun: forceRun,
			IsDryRun:   dryRun,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()

		publisher, err := pubsub.NewPublisher(ctx, l, conf.Project)
		if err != nil {
			return err
		}
		defer publisher.Close()

		result := publisher.Publish(ctx, conf.Transport.DispatchTopic, [][]byte{payload})
		if len(result.Failures) > 0 {
			return fmt.Errorf("failed to publish dispatch message: %w", result.Failures[0].Err)
		}

		l.Info(fmt.Sprintf("triggered run %s", runID))
		return nil
	}

	return cmd
}
