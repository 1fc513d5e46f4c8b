package derived_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/commitstore"
	"github.com/Sumatoshi-tech/gitgraft/pkg/derived"
)

func file(t *testing.T, st *commitstore.Memory, path, body string) changeset.FileChange {
	t.Helper()

	id, err := st.WriteContent(context.Background(), []byte(body))
	require.NoError(t, err)

	return changeset.FileChange{Path: path, ContentID: id, Mode: changeset.ModeRegular, Size: int64(len(body))}
}

func create(t *testing.T, st *commitstore.Memory, cs *changeset.Changeset) changeset.ID {
	t.Helper()

	id, err := st.Create(context.Background(), cs)
	require.NoError(t, err)

	return id
}

func TestLocalEngine_ManifestFollowsFirstParentChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := commitstore.NewMemory()
	engine := derived.NewLocalEngine(st)

	x1 := file(t, st, "x", "1")
	x2 := file(t, st, "x", "2")

	a := create(t, st, &changeset.Changeset{Message: "a", Files: []changeset.FileChange{x1, file(t, st, "y", "y")}})
	b := create(t, st, &changeset.Changeset{
		Parents: []changeset.ID{a},
		Message: "b",
		Files:   []changeset.FileChange{x2, {Path: "y", Deleted: true}},
	})

	ok, err := engine.EnsureDerived(ctx, b, derived.KindManifest)
	require.NoError(t, err)
	assert.True(t, ok)

	manifest, err := derived.LoadManifest(ctx, st, b)
	require.NoError(t, err)
	assert.Equal(t, derived.Manifest{"x": {ContentID: x2.ContentID, Mode: changeset.ModeRegular, Size: 1}}, manifest)

	// Ancestors are derived along the way.
	parent, err := derived.LoadManifest(ctx, st, a)
	require.NoError(t, err)
	assert.Len(t, parent, 2)
}

func TestLocalEngine_MergeManifestIsUnionWithFirstParentPrecedence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := commitstore.NewMemory()
	engine := derived.NewLocalEngine(st)

	a1 := file(t, st, "a", "from-dest")
	a2 := file(t, st, "a", "from-import")
	b2 := file(t, st, "lib/b", "imported")

	dest := create(t, st, &changeset.Changeset{Message: "dest", Files: []changeset.FileChange{a1}})
	imported := create(t, st, &changeset.Changeset{Message: "imported", Files: []changeset.FileChange{a2, b2}})
	merge := create(t, st, &changeset.Changeset{Parents: []changeset.ID{dest, imported}, Message: "merge"})

	manifest, err := engine.Manifest(ctx, merge)
	require.NoError(t, err)

	assert.Equal(t, a1.ContentID, manifest["a"].ContentID)
	assert.Equal(t, b2.ContentID, manifest["lib/b"].ContentID)
}

func TestLocalEngine_ChangesetInfo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := commitstore.NewMemory()
	engine := derived.NewLocalEngine(st)

	id := create(t, st, &changeset.Changeset{Author: "dev", Message: "m", Date: time.Unix(100, 0)})

	ok, err := engine.EnsureDerived(ctx, id, derived.KindChangesetInfo)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = st.GetDerived(ctx, derived.KindChangesetInfo, id)
	require.NoError(t, err)
}

func TestLocalEngine_UnknownKindAndMissingChangeset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := commitstore.NewMemory()
	engine := derived.NewLocalEngine(st)

	_, err := engine.EnsureDerived(ctx, changeset.ID{1}, "blame")
	require.ErrorIs(t, err, derived.ErrUnknownKind)

	_, err = engine.EnsureDerived(ctx, changeset.ID{1}, derived.KindManifest)
	require.ErrorIs(t, err, changeset.ErrNotFound)

	_, err = derived.LoadManifest(ctx, st, changeset.ID{1})
	require.ErrorIs(t, err, derived.ErrNotDerived)
}

// pendingEngine reports pending for the first n calls per kind.
type pendingEngine struct {
	mu      sync.Mutex
	pending int
	calls   map[string]int
	err     error
}

func (e *pendingEngine) EnsureDerived(_ context.Context, _ changeset.ID, kind string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.calls == nil {
		e.calls = map[string]int{}
	}

	e.calls[kind]++

	if e.err != nil {
		return false, e.err
	}

	return e.calls[kind] > e.pending, nil
}

func zeroBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func TestVerifier_RetriesPendingKinds(t *testing.T) {
	t.Parallel()

	engine := &pendingEngine{pending: 2}

	verifier, err := derived.NewVerifier(engine, derived.KnownKinds(),
		derived.WithMaxAttempts(3), derived.WithBackOff(zeroBackOff))
	require.NoError(t, err)

	require.NoError(t, verifier.Ensure(context.Background(), changeset.ID{7}))
	assert.Equal(t, map[string]int{derived.KindManifest: 3, derived.KindChangesetInfo: 3}, engine.calls)
}

func TestVerifier_GivesUpAfterBound(t *testing.T) {
	t.Parallel()

	engine := &pendingEngine{pending: 100}

	verifier, err := derived.NewVerifier(engine, []string{derived.KindManifest},
		derived.WithMaxAttempts(4), derived.WithBackOff(zeroBackOff))
	require.NoError(t, err)

	err = verifier.Ensure(context.Background(), changeset.ID{7})
	require.ErrorIs(t, err, derived.ErrDerivationIncomplete)
	assert.Equal(t, 4, engine.calls[derived.KindManifest])
}

func TestVerifier_SurfacesEngineErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("engine down")
	engine := &pendingEngine{err: boom}

	verifier, err := derived.NewVerifier(engine, []string{derived.KindManifest},
		derived.WithMaxAttempts(2), derived.WithBackOff(zeroBackOff))
	require.NoError(t, err)

	err = verifier.Ensure(context.Background(), changeset.ID{7})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, derived.ErrDerivationIncomplete)
}

func TestNewVerifier_RejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := derived.NewVerifier(&pendingEngine{}, []string{"manifest", "blame"})
	require.ErrorIs(t, err, derived.ErrUnknownKind)
}
