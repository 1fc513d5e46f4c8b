package derived

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/persist"
)

// LocalEngine derives data synchronously into its Index.
type LocalEngine struct {
	index Index
	codec persist.Codec
}

// NewLocalEngine creates an engine backed by index.
func NewLocalEngine(index Index) *LocalEngine {
	return &LocalEngine{index: index, codec: persist.NewGobCodec()}
}

// EnsureDerived implements Engine. Missing data is derived before returning, so a
// successful call always reports true.
func (e *LocalEngine) EnsureDerived(ctx context.Context, id changeset.ID, kind string) (bool, error) {
	switch kind {
	case KindManifest:
		_, err := e.Manifest(ctx, id)
		if err != nil {
			return false, err
		}
	case KindChangesetInfo:
		err := e.deriveInfo(ctx, id)
		if err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return true, nil
}

// Manifest returns the manifest of id, deriving it and any underived ancestors first.
func (e *LocalEngine) Manifest(ctx context.Context, id changeset.ID) (Manifest, error) {
	cached, err := LoadManifest(ctx, e.index, id)
	if err == nil {
		return cached, nil
	}

	if !errors.Is(err, ErrNotDerived) {
		return nil, err
	}

	pending, err := e.underivedAncestors(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(pending) == 0 {
		return LoadManifest(ctx, e.index, id)
	}

	var manifest Manifest

	for _, cs := range pending {
		manifest, err = e.deriveManifest(ctx, cs)
		if err != nil {
			return nil, err
		}
	}

	return manifest, nil
}

// underivedAncestors returns id and its ancestors lacking a manifest, parents first.
func (e *LocalEngine) underivedAncestors(ctx context.Context, id changeset.ID) ([]*changeset.Changeset, error) {
	type frame struct {
		id       changeset.ID
		expanded bool
	}

	var order []*changeset.Changeset

	visited := map[changeset.ID]bool{}
	loaded := map[changeset.ID]*changeset.Changeset{}
	stack := []frame{{id: id}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.expanded {
			order = append(order, loaded[top.id])

			continue
		}

		if visited[top.id] {
			continue
		}

		visited[top.id] = true

		_, err := e.index.GetDerived(ctx, KindManifest, top.id)
		if err == nil {
			continue
		}

		if !errors.Is(err, changeset.ErrNotFound) {
			return nil, err
		}

		cs, err := e.index.Read(ctx, top.id)
		if err != nil {
			return nil, fmt.Errorf("read %s for derivation: %w", top.id.Short(), err)
		}

		loaded[top.id] = cs
		stack = append(stack, frame{id: top.id, expanded: true})

		for i := len(cs.Parents) - 1; i >= 0; i-- {
			if !visited[cs.Parents[i]] {
				stack = append(stack, frame{id: cs.Parents[i]})
			}
		}
	}

	return order, nil
}

// deriveManifest computes the manifest of cs from its parents' stored manifests.
// Parents are merged with earlier parents winning, then cs's own changes apply.
func (e *LocalEngine) deriveManifest(ctx context.Context, cs *changeset.Changeset) (Manifest, error) {
	manifest := Manifest{}

	for i := len(cs.Parents) - 1; i >= 0; i-- {
		parent, err := LoadManifest(ctx, e.index, cs.Parents[i])
		if err != nil {
			return nil, fmt.Errorf("parent %s: %w", cs.Parents[i].Short(), err)
		}

		maps.Copy(manifest, parent)
	}

	for _, f := range cs.Files {
		if f.Deleted {
			delete(manifest, f.Path)

			continue
		}

		manifest[f.Path] = Entry{ContentID: f.ContentID, Mode: f.Mode, Size: f.Size}
	}

	data, err := persist.Marshal(e.codec, manifest)
	if err != nil {
		return nil, err
	}

	err = e.index.PutDerived(ctx, KindManifest, cs.ID(), data)
	if err != nil {
		return nil, fmt.Errorf("store manifest: %w", err)
	}

	return manifest, nil
}

func (e *LocalEngine) deriveInfo(ctx context.Context, id changeset.ID) error {
	_, err := e.index.GetDerived(ctx, KindChangesetInfo, id)
	if err == nil {
		return nil
	}

	if !errors.Is(err, changeset.ErrNotFound) {
		return err
	}

	cs, err := e.index.Read(ctx, id)
	if err != nil {
		return err
	}

	data, err := persist.Marshal(e.codec, Info{
		Author:      cs.Author,
		Message:     cs.Message,
		Date:        cs.Date,
		ParentCount: len(cs.Parents),
		FileCount:   len(cs.Files),
	})
	if err != nil {
		return err
	}

	return e.index.PutDerived(ctx, KindChangesetInfo, id, data)
}

// LoadManifest reads a stored manifest. Returns ErrNotDerived if it was never computed.
func LoadManifest(ctx context.Context, index Index, id changeset.ID) (Manifest, error) {
	data, err := index.GetDerived(ctx, KindManifest, id)
	if errors.Is(err, changeset.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s of %s", ErrNotDerived, KindManifest, id.Short())
	}

	if err != nil {
		return nil, err
	}

	manifest := Manifest{}

	err = persist.Unmarshal(persist.NewGobCodec(), data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("decode manifest of %s: %w", id.Short(), err)
	}

	return manifest, nil
}
