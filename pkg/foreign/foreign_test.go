package foreign_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/foreign"
	"github.com/Sumatoshi-tech/gitgraft/pkg/toposort"
)

func collect(t *testing.T, r foreign.Reader) []*foreign.Commit {
	t.Helper()

	var out []*foreign.Commit

	for c, err := range r.Commits(context.Background()) {
		require.NoError(t, err)

		out = append(out, c)
	}

	return out
}

func TestSliceReader_OrdersParentsFirst(t *testing.T) {
	t.Parallel()

	// Given children first, a merge, and a second root.
	reader, err := foreign.NewSliceReader([]foreign.FixtureCommit{
		{ID: "m", ParentIDs: []string{"b", "x"}},
		{ID: "b", ParentIDs: []string{"a"}},
		{ID: "x"},
		{ID: "a"},
	})
	require.NoError(t, err)

	ids := reader.IDs()
	require.Len(t, ids, 4)

	pos := map[string]int{}
	for i, id := range ids {
		pos[id] = i
	}

	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["m"])
	assert.Less(t, pos["x"], pos["m"])

	count, err := reader.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestSliceReader_Errors(t *testing.T) {
	t.Parallel()

	_, err := foreign.NewSliceReader([]foreign.FixtureCommit{{ID: "a", ParentIDs: []string{"ghost"}}})
	require.ErrorIs(t, err, foreign.ErrUnknownParent)

	_, err = foreign.NewSliceReader([]foreign.FixtureCommit{
		{ID: "a", ParentIDs: []string{"b"}},
		{ID: "b", ParentIDs: []string{"a"}},
	})
	require.ErrorIs(t, err, toposort.ErrCycle)
}

func TestSliceReader_Blobs(t *testing.T) {
	t.Parallel()

	reader, err := foreign.NewSliceReader([]foreign.FixtureCommit{{
		ID: "a",
		Files: []foreign.FixtureFile{
			{Path: "README", Content: []byte("hi")},
			{Path: "old", Deleted: true},
		},
	}})
	require.NoError(t, err)

	commits := collect(t, reader)
	require.Len(t, commits, 1)
	require.Len(t, commits[0].Files, 2)

	readme := commits[0].Files[0]
	assert.Equal(t, changeset.ModeRegular, readme.Mode)

	body, err := reader.ReadBlob(context.Background(), readme.BlobID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), body)

	assert.True(t, commits[0].Files[1].Deleted)
	assert.Empty(t, commits[0].Files[1].BlobID)

	_, err = reader.ReadBlob(context.Background(), "missing")
	require.ErrorIs(t, err, foreign.ErrBlobNotFound)
}

func TestSliceReader_StopsOnCancel(t *testing.T) {
	t.Parallel()

	reader, err := foreign.NewSliceReader([]foreign.FixtureCommit{{ID: "a"}, {ID: "b", ParentIDs: []string{"a"}}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range reader.Commits(ctx) {
		require.ErrorIs(t, err, context.Canceled)

		break
	}
}

func commitAll(t *testing.T, repo *git2go.Repository, message string, when time.Time) *git2go.Oid {
	t.Helper()

	index, err := repo.Index()
	require.NoError(t, err)

	defer index.Free()

	require.NoError(t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(t, index.UpdateAll([]string{"*"}, nil))
	require.NoError(t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(t, err)

	tree, err := repo.LookupTree(treeID)
	require.NoError(t, err)

	defer tree.Free()

	sig := &git2go.Signature{Name: "Dev", Email: "dev@example.com", When: when}

	var parents []*git2go.Commit

	if head, headErr := repo.Head(); headErr == nil {
		parent, lookupErr := repo.LookupCommit(head.Target())
		require.NoError(t, lookupErr)

		parents = append(parents, parent)

		head.Free()
	}

	oid, err := repo.CreateCommit("HEAD", sig, sig, message, tree, parents...)
	require.NoError(t, err)

	for _, p := range parents {
		p.Free()
	}

	return oid
}

func TestGitReader_ReadsLinearHistory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	defer repo.Free()

	when := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh"), 0o755))
	first := commitAll(t, repo, "first\n", when)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("two"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "run.sh")))
	second := commitAll(t, repo, "second\n", when.Add(time.Hour))

	reader, err := foreign.OpenGit(dir, "")
	require.NoError(t, err)

	defer reader.Close()

	assert.Equal(t, second.String(), reader.Head())

	count, err := reader.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	commits := collect(t, reader)
	require.Len(t, commits, 2)

	assert.Equal(t, first.String(), commits[0].ID)
	assert.Empty(t, commits[0].ParentIDs)
	assert.Equal(t, "Dev <dev@example.com>", commits[0].Author)
	assert.Equal(t, "first\n", commits[0].Message)
	assert.True(t, when.Equal(commits[0].Date))
	assert.Len(t, commits[0].Files, 2)

	assert.Equal(t, second.String(), commits[1].ID)
	assert.Equal(t, []string{first.String()}, commits[1].ParentIDs)

	files := map[string]foreign.File{}
	for _, f := range commits[1].Files {
		files[f.Path] = f
	}

	require.Len(t, files, 2)
	assert.True(t, files["run.sh"].Deleted)

	body, err := reader.ReadBlob(context.Background(), files["a.txt"].BlobID)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), body)

	for _, f := range commits[0].Files {
		if f.Path == "run.sh" {
			assert.Equal(t, changeset.ModeExecutable, f.Mode)
		}
	}
}

func TestGitReader_UnknownRevision(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	defer repo.Free()

	_, err = foreign.OpenGit(dir, "no-such-branch")
	require.Error(t, err)
}
