package dashboard

import "github.com/cam3ron2/gh-dashboard/internal/widget"

// WidgetSnapshot is the metrics view of one widget.
type WidgetSnapshot struct {
	Widget string
	Phase  widget.Phase
	Kind   widget.ErrorKind
	Epoch  uint64
	Stats  widget.Stats
}

type snapshotter interface {
	Name() string
	Epoch() uint64
	Stats() widget.Stats
}

// Snapshot returns per-widget phase, epoch and counters in a stable order.
func (p *Page) Snapshot() []WidgetSnapshot {
	snapshots := make([]WidgetSnapshot, 0, 7)
	snapshots = append(snapshots,
		snapshotOf(p.contributions, p.contributions.State()),
		snapshotOf(p.frequency, p.frequency.State()),
		snapshotOf(p.funStats, p.funStats.State()),
		snapshotOf(p.repos, p.repos.State()),
	)
	if p.profile != nil {
		snapshots = append(snapshots, snapshotOf(p.profile, p.profile.State()))
	}
	snapshots = append(snapshots, snapshotOf(p.rank, p.rank.State()))
	ranking := p.rankings.Machine()
	snapshots = append(snapshots, snapshotOf(ranking, ranking.State()))
	return snapshots
}

func snapshotOf[K comparable, T any](machine snapshotter, state widget.State[K, T]) WidgetSnapshot {
	return WidgetSnapshot{
		Widget: machine.Name(),
		Phase:  state.Phase,
		Kind:   state.Kind,
		Epoch:  machine.Epoch(),
		Stats:  machine.Stats(),
	}
}
