// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package tree

// Missing is the observation value used to mark a dropped-out or
// silenced character, matching the character matrix's sentinel.
const Missing = -1

// Partition computes the α-partition (§4.1) for a single site and
// stores it on every node's SiteState. obs maps a leaf's label to its
// observed state at this site: 0 for unedited, Missing for '?', or a
// positive mutated state. It must be called once per site, after every
// topology change and before every E-step.
func (t *Tree) Partition(site int, obs map[string]int) {
	for _, id := range t.post {
		n := t.nodes[id]
		if n.IsLeaf() {
			n.sites[site].Alpha = leafAlpha(obs[n.label])
			continue
		}
		l := t.nodes[n.children[0]].sites[site].Alpha
		r := t.nodes[n.children[1]].sites[site].Alpha
		n.sites[site].Alpha = combineAlpha(l, r)
	}
}

func leafAlpha(obs int) AlphaTag {
	switch {
	case obs == Missing:
		return Question()
	case obs == 0:
		return Z()
	default:
		return EditedTo(obs)
	}
}

// combineAlpha implements the postorder rule of §3: with R = children's
// tags minus {z, ?}, the parent is z if any child is z or |R| > 1, the
// single member of R if |R| == 1, else '?'.
func combineAlpha(l, r AlphaTag) AlphaTag {
	if l.Kind == Silent || r.Kind == Silent {
		return Z()
	}
	switch {
	case l.Kind == Edited && r.Kind == Edited:
		if l.State != r.State {
			return Z()
		}
		return l
	case l.Kind == Edited:
		return l
	case r.Kind == Edited:
		return r
	default:
		return Question()
	}
}
