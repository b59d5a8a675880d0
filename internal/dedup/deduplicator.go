package dedup

import (
	"fmt"
	"slices"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Outcome describes what Add did with a record.
type Outcome int

const (
	// Added means the record became a new unique slot.
	Added Outcome = iota

	// Replaced means the record collided and took over the slot because its
	// source ranks higher.
	Replaced

	// Discarded means the record collided with an equal or higher-ranked one.
	Discarded
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Replaced:
		return "replaced"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// identity holds the keys a record produces. Empty fields mean no key.
type identity struct {
	doi   string
	title string
}

func identityOf(p *domain.Paper) identity {
	return identity{doi: p.DOIKey(), title: NormalizeTitle(p.Title)}
}

type keyKind int

const (
	doiKey keyKind = iota
	titleKey
)

func (k keyKind) String() string {
	if k == doiKey {
		return "doi"
	}
	return "title"
}

type key struct {
	kind  keyKind
	value string
}

// keys lists the DOI key before the title key so a DOI claim lands first.
func (id identity) keys() []key {
	out := make([]key, 0, 2)
	if id.doi != "" {
		out = append(out, key{doiKey, id.doi})
	}
	if id.title != "" {
		out = append(out, key{titleKey, id.title})
	}
	return out
}

// Deduplicator merges records in arrival order. A DOI match takes
// precedence over a title match; a record with neither key is always added.
//
// Every slot owns the set of keys seen for the paper it holds, and both
// indices map each owned key to that slot. Keys stay with a slot when its
// record is replaced. When a replacement brings a key owned by a second
// slot the two slots merge: the higher-ranked record stays and the
// surviving slot takes over every key of the dropped one.
//
// A Deduplicator is not safe for concurrent use.
type Deduplicator struct {
	papers  []*domain.Paper // nil marks a slot removed by a merge
	owned   [][]key
	byDOI   map[string]int
	byTitle map[string]int
	live    int
}

// New creates an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		byDOI:   make(map[string]int),
		byTitle: make(map[string]int),
	}
}

// Deduplicate merges papers and returns the surviving records.
func Deduplicate(papers []*domain.Paper) []*domain.Paper {
	d := New()
	for _, p := range papers {
		d.Add(p)
	}
	return d.Papers()
}

// Add merges one record. Nil records are discarded.
func (d *Deduplicator) Add(p *domain.Paper) Outcome {
	if p == nil {
		return Discarded
	}

	id := identityOf(p)

	if id.doi != "" {
		if slot, ok := d.byDOI[id.doi]; ok {
			return d.resolve(slot, p, id)
		}
	}
	if id.title != "" {
		if slot, ok := d.byTitle[id.title]; ok {
			return d.resolve(slot, p, id)
		}
	}

	slot := len(d.papers)
	d.papers = append(d.papers, p)
	d.owned = append(d.owned, nil)
	d.live++
	d.claim(slot, id)
	return Added
}

// resolve settles a collision between the record at slot and p. A
// replacement that loses a follow-up merge reports Discarded.
func (d *Deduplicator) resolve(slot int, p *domain.Paper, id identity) Outcome {
	if !outranks(p, d.papers[slot]) {
		return Discarded
	}

	d.papers[slot] = p
	if d.papers[d.claim(slot, id)] != p {
		return Discarded
	}
	return Replaced
}

// outranks reports whether a wins over b. Ties go to the record already kept.
func outranks(a, b *domain.Paper) bool {
	return a.Source.Priority() < b.Source.Priority()
}

func (d *Deduplicator) index(kind keyKind) map[string]int {
	if kind == doiKey {
		return d.byDOI
	}
	return d.byTitle
}

// claim gives the keys of id to slot, merging with any slot that already
// owns one of them. It returns the slot holding the keys afterwards.
func (d *Deduplicator) claim(slot int, id identity) int {
	for _, k := range id.keys() {
		idx := d.index(k.kind)
		other, ok := idx[k.value]
		switch {
		case !ok:
			idx[k.value] = slot
			d.owned[slot] = append(d.owned[slot], k)
		case other != slot:
			slot = d.merge(slot, other)
		}
	}
	return slot
}

// merge folds the lower-ranked of two slots into the other and returns the
// survivor. On a tie the earlier slot survives.
func (d *Deduplicator) merge(a, b int) int {
	keep, drop := b, a
	if outranks(d.papers[a], d.papers[b]) || (!outranks(d.papers[b], d.papers[a]) && a < b) {
		keep, drop = a, b
	}

	for _, k := range d.owned[drop] {
		d.index(k.kind)[k.value] = keep
	}
	d.owned[keep] = append(d.owned[keep], d.owned[drop]...)
	d.owned[drop] = nil
	d.papers[drop] = nil
	d.live--
	return keep
}

// Papers returns the unique records in slot order.
func (d *Deduplicator) Papers() []*domain.Paper {
	out := make([]*domain.Paper, 0, d.live)
	for _, p := range d.papers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of unique records.
func (d *Deduplicator) Len() int {
	return d.live
}

// CheckInvariant verifies that every indexed key points at a live slot that
// owns it, that every owned key is indexed to its owner, and that the keys
// of each live record are owned by its slot.
func (d *Deduplicator) CheckInvariant() error {
	live := 0
	for slot, p := range d.papers {
		if p == nil {
			if len(d.owned[slot]) > 0 {
				return fmt.Errorf("removed slot %d still owns %d keys", slot, len(d.owned[slot]))
			}
			continue
		}
		live++
		for _, k := range d.owned[slot] {
			if got, ok := d.index(k.kind)[k.value]; !ok || got != slot {
				return fmt.Errorf("slot %d owns %s key %q but it is not indexed to it", slot, k.kind, k.value)
			}
		}
		for _, k := range identityOf(p).keys() {
			if !slices.Contains(d.owned[slot], k) {
				return fmt.Errorf("slot %d does not own its record's %s key %q", slot, k.kind, k.value)
			}
		}
	}
	if live != d.live {
		return fmt.Errorf("live count %d does not match %d live slots", d.live, live)
	}

	for _, kind := range []keyKind{doiKey, titleKey} {
		for value, slot := range d.index(kind) {
			if slot < 0 || slot >= len(d.papers) || d.papers[slot] == nil {
				return fmt.Errorf("%s key %q points at missing slot %d", kind, value, slot)
			}
			if !slices.Contains(d.owned[slot], key{kind, value}) {
				return fmt.Errorf("%s key %q points at slot %d which does not own it", kind, value, slot)
			}
		}
	}
	return nil
}
