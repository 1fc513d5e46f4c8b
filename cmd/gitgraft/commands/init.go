package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// ErrRecordExists is returned by init when the record path is taken.
var ErrRecordExists = errors.New("recovery record already exists (use --force to overwrite)")

// Init defaults.
const (
	defaultBatchSize    = 100
	defaultSleep        = 5 * time.Second
	defaultDestBookmark = "main"
	defaultCommitAuthor = "gitgraft"
)

// InitOptions are the parameters of a new import.
type InitOptions struct {
	ForeignRepo          string
	DestPath             string
	DestBookmark         string
	BookmarkSuffix       string
	BatchSize            int
	Sleep                time.Duration
	CommitAuthor         string
	CommitMessage        string
	GitMergeRevision     string
	GitMergeChangeset    string
	MarkNotSyncedMapping string
	DisableHgSyncCheck   bool
	DisablePhabCheck     bool
	DisableXRepoCheck    bool
	Force                bool

	now func() time.Time
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	opts := &InitOptions{now: time.Now}

	cmd := &cobra.Command{
		Use:   "init <record>",
		Short: "Write a fresh recovery record for a new import",
		Long: `Write a recovery record at stage GitImport describing a new import.
Run it with: gitgraft recover-process <record>`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(args[0], cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ForeignRepo, "foreign-repo", "", "path to the local git repository to import")
	flags.StringVar(&opts.DestPath, "dest-path", "", "directory the foreign tree lands under")
	flags.StringVar(&opts.DestBookmark, "dest-bookmark", defaultDestBookmark, "bookmark the import merges into")
	flags.StringVar(&opts.BookmarkSuffix, "bookmark-suffix", "", "suffix of the repo_import_<suffix> alias bookmark")
	flags.IntVar(&opts.BatchSize, "batch-size", defaultBatchSize, "commits per checkpointed batch")
	flags.DurationVar(&opts.Sleep, "sleep", defaultSleep, "pause between batches")
	flags.StringVar(&opts.CommitAuthor, "commit-author", defaultCommitAuthor, "author of the merge changeset")
	flags.StringVar(&opts.CommitMessage, "commit-message", "", "message of the merge changeset")
	flags.StringVar(&opts.GitMergeRevision, "git-merge-rev", "", "foreign commit whose first parent is overridden")
	flags.StringVar(&opts.GitMergeChangeset, "git-merge-changeset", "", "native changeset used as the overriding parent")
	flags.StringVar(&opts.MarkNotSyncedMapping, "mark-not-synced", "", "mapping name recorded on imported changesets")
	flags.BoolVar(&opts.DisableHgSyncCheck, "disable-hg-sync-check", false, "skip the hg sync check")
	flags.BoolVar(&opts.DisablePhabCheck, "disable-phab-check", false, "skip the phabricator check")
	flags.BoolVar(&opts.DisableXRepoCheck, "disable-x-repo-check", false, "skip the cross-repo sync check")
	flags.BoolVar(&opts.Force, "force", false, "overwrite an existing record")

	for _, name := range []string{"foreign-repo", "dest-path", "bookmark-suffix"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// State builds the initial record for recordPath.
func (o *InitOptions) State(recordPath string) (*recovery.State, error) {
	abs, err := filepath.Abs(recordPath)
	if err != nil {
		return nil, fmt.Errorf("resolve record path: %w", err)
	}

	foreignRepo, err := filepath.Abs(o.ForeignRepo)
	if err != nil {
		return nil, fmt.Errorf("resolve foreign repo: %w", err)
	}

	message := o.CommitMessage
	if message == "" {
		message = fmt.Sprintf("Import %s into %s", o.BookmarkSuffix, o.DestPath)
	}

	now := time.Now
	if o.now != nil {
		now = o.now
	}

	state := &recovery.State{
		ImportStage:               recovery.StageGitImport,
		BatchSize:                 o.BatchSize,
		BookmarkSuffix:            o.BookmarkSuffix,
		CommitAuthor:              o.CommitAuthor,
		CommitMessage:             message,
		Datetime:                  now().UTC().Truncate(time.Second),
		DestBookmarkName:          o.DestBookmark,
		DestPath:                  o.DestPath,
		GitMergeForeignRevisionID: o.GitMergeRevision,
		ForeignRepoPath:           foreignRepo,
		HgSyncCheckDisabled:       o.DisableHgSyncCheck,
		PhabCheckDisabled:         o.DisablePhabCheck,
		XRepoCheckDisabled:        o.DisableXRepoCheck,
		RecoveryFilePath:          abs,
		SleepTime:                 recovery.Duration(o.Sleep),
		MarkNotSyncedMapping:      o.MarkNotSyncedMapping,
	}

	if o.GitMergeChangeset != "" {
		id, parseErr := changeset.ParseID(o.GitMergeChangeset)
		if parseErr != nil {
			return nil, fmt.Errorf("--git-merge-changeset: %w", parseErr)
		}

		state.GitMergeChangesetID = &id
	}

	return state, state.Validate()
}

// Run writes the record and prints how to start the import.
func (o *InitOptions) Run(recordPath string, out io.Writer) error {
	if !o.Force {
		_, err := os.Stat(recordPath)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrRecordExists, recordPath)
		}
	}

	state, err := o.State(recordPath)
	if err != nil {
		return err
	}

	err = recovery.NewStore().Save(recordPath, state)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "wrote %s\nstart the import with: gitgraft recover-process %s\n", recordPath, recordPath)

	return nil
}
