package snapshot

import (
	"context"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// Projector serves read models over a dimension stream's stored history.
// It never writes; consumers such as reporting views and the status command
// use it to resolve current state and point-in-time state.
type Projector struct {
	store SnapshotStore
}

// NewProjector creates a Projector over the given store.
func NewProjector(store SnapshotStore) Projector {
	return Projector{store: store}
}

// Current returns the open version of every entity, ordered by natural key.
func (p Projector) Current(ctx context.Context) ([]warehouse.EntityVersion, error) {
	return p.store.CurrentVersions(ctx)
}

// CurrentFor returns the open version of one entity, or ok=false when the
// entity was never observed or currently has no open version.
func (p Projector) CurrentFor(ctx context.Context, naturalKey warehouse.NaturalKeyString) (
	warehouse.EntityVersion,
	bool,
	error,
) {

	open, err := p.store.OpenVersions(ctx, []warehouse.NaturalKeyString{naturalKey})
	if err != nil {
		return warehouse.EntityVersion{}, false, err
	}

	version, ok := open[naturalKey]

	return version, ok, nil
}

// History returns every version of one entity, ordered by effective start.
func (p Projector) History(ctx context.Context, naturalKey warehouse.NaturalKeyString) (
	[]warehouse.EntityVersion,
	error,
) {

	return p.store.AllVersions(ctx, naturalKey)
}

// AsOf returns the version of one entity that was valid at the given
// instant, or ok=false when no version covers it. A version covers the
// half-open interval [EffectiveStart, EffectiveEnd).
func (p Projector) AsOf(ctx context.Context, naturalKey warehouse.NaturalKeyString, at warehouse.AsOfTime) (
	warehouse.EntityVersion,
	bool,
	error,
) {

	history, err := p.store.AllVersions(ctx, naturalKey)
	if err != nil {
		return warehouse.EntityVersion{}, false, err
	}

	at = at.UTC()

	for _, version := range history {
		if version.EffectiveStart.After(at) {
			continue
		}

		end, hasEnd := version.EffectiveEnd()
		if !hasEnd || at.Before(end) {
			return version, true, nil
		}
	}

	return warehouse.EntityVersion{}, false, nil
}
