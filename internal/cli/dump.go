package cli

import (
	"github.com/spf13/cobra"

	"github.com/trellis-eng/rally2jira/internal/rally"
)

var dumpForce bool

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Fetch Rally artifacts and attachments into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client := rally.NewClient(rally.ClientConfig{
			Server:    cfg.Rally.SDK.Server,
			APIKey:    cfg.Rally.SDK.APIKey,
			Workspace: cfg.Rally.SDK.Workspace,
			Project:   cfg.Rally.SDK.Project,
		}, logger.With("component", "rally"))
		cache := rally.NewCache(cfg.Rally.OutputRoot, logger.With("component", "cache"))

		artifacts, err := client.Artifacts(ctx)
		if err != nil {
			return err
		}

		var cached, blobs int
		for _, artifact := range artifacts {
			if err := cache.WriteArtifact(artifact, dumpForce); err != nil {
				return err
			}
			cached++

			for _, ref := range artifact.Attachments {
				if !dumpForce && cache.HasAttachment(ref) {
					continue
				}
				content, err := client.AttachmentContent(ctx, ref)
				if err != nil {
					logger.Warn("fetch attachment failed, skipping",
						"artifact", artifact.FormattedID, "attachment", ref.ObjectID, "error", err)
					continue
				}
				if err := cache.WriteAttachment(ref, content, dumpForce); err != nil {
					return err
				}
				blobs++
			}
		}

		logger.Info("dump complete", "artifacts", cached, "attachments", blobs)
		return nil
	},
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpForce, "force", false, "rewrite cached documents and blobs")
}
