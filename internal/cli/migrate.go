package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellis-eng/rally2jira/internal/jira"
	"github.com/trellis-eng/rally2jira/internal/rally"
	s3client "github.com/trellis-eng/rally2jira/internal/s3"
)

var (
	migrateIDs           []string
	skipAttachmentUpload bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Build the Jira import document from the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cache := rally.NewCache(cfg.Rally.OutputRoot, logger.With("component", "cache"))

		var store jira.BlobStore
		if cfg.AWS.Bucket != "" {
			var err error
			store, err = s3client.New(ctx, s3client.Config{
				Endpoint:  cfg.AWS.Endpoint,
				Region:    cfg.AWS.Region,
				Bucket:    cfg.AWS.Bucket,
				AccessKey: cfg.AWS.AccessKey,
				SecretKey: cfg.AWS.SecretKey,
			}, logger.With("component", "s3"))
			if err != nil {
				return err
			}
		} else {
			logger.Warn("no attachment bucket configured, attachments will be skipped")
			store = unconfiguredStore{}
		}

		users := jira.NewUserRegistry()
		resolver := jira.NewAttachmentResolver(
			cache,
			store,
			time.Duration(cfg.AWS.PresignExpirySeconds)*time.Second,
			skipAttachmentUpload,
			logger.With("component", "attachments"),
		)
		translator := jira.NewTranslator(
			cfg.Jira.Mappings,
			jira.NewTextTranslator(cfg.ZendeskDomain()),
			users,
			resolver,
			nil,
			logger.With("component", "translator"),
		)
		migrator := jira.NewMigrator(
			cache,
			translator,
			users,
			cfg.Jira.Project,
			cfg.Jira.OutputFile,
			cfg.Links().Type,
			logger.With("component", "migrator"),
		)

		ids, err := parseIDs(migrateIDs)
		if err != nil {
			return err
		}

		_, err = migrator.Run(ctx, ids)
		return err
	},
}

func init() {
	migrateCmd.Flags().StringSliceVar(&migrateIDs, "ids", nil, "restrict the run to these artifact object ids")
	migrateCmd.Flags().BoolVar(&skipAttachmentUpload, "skip-attachment-upload", false, "presign without re-uploading blobs")
}

func parseIDs(raw []string) (map[int64]bool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make(map[int64]bool, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid object id %q", s)
		}
		ids[id] = true
	}
	return ids, nil
}

// unconfiguredStore fails every operation; the translator downgrades
// the failures to per-attachment warnings.
type unconfiguredStore struct{}

func (unconfiguredStore) Upload(context.Context, string, string) error {
	return errors.New("no blob store configured")
}

func (unconfiguredStore) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("no blob store configured")
}
