package triple

// Graph is an insertion-ordered set of triples with a subject+predicate index.
//
// The index is built as triples are added, so locating an attribute of a node
// or relation is a map lookup instead of a scan over every triple.
type Graph struct {
	triples   []Triple
	seen      map[Triple]struct{}
	index     map[Term]map[Term][]Term // subject -> predicate -> objects
	bySubject map[Term][]Triple
	objects   map[Term]int // object -> occurrences
}

// NewGraph returns a Graph holding ts (duplicates dropped).
func NewGraph(ts ...Triple) *Graph {
	g := &Graph{
		seen:      make(map[Triple]struct{}, len(ts)),
		index:     make(map[Term]map[Term][]Term),
		bySubject: make(map[Term][]Triple),
		objects:   make(map[Term]int),
	}
	g.Add(ts...)
	return g
}

// Add inserts triples, ignoring exact duplicates.
func (g *Graph) Add(ts ...Triple) {
	for _, t := range ts {
		if _, ok := g.seen[t]; ok {
			continue
		}
		g.seen[t] = struct{}{}
		g.triples = append(g.triples, t)

		preds, ok := g.index[t.Subject]
		if !ok {
			preds = make(map[Term][]Term)
			g.index[t.Subject] = preds
		}
		preds[t.Predicate] = append(preds[t.Predicate], t.Object)
		g.bySubject[t.Subject] = append(g.bySubject[t.Subject], t)
		g.objects[t.Object]++
	}
}

// Len returns the number of distinct triples.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns the triples in insertion order. The slice must not be mutated.
func (g *Graph) Triples() []Triple { return g.triples }

// Objects returns every object for (s, p) in insertion order.
func (g *Graph) Objects(s, p Term) []Term {
	return g.index[s][p]
}

// First returns the first object for (s, p).
func (g *Graph) First(s, p Term) (Term, bool) {
	objs := g.index[s][p]
	if len(objs) == 0 {
		return Term{}, false
	}
	return objs[0], true
}

// Subjects returns, in insertion order, each subject that has (p, o).
func (g *Graph) Subjects(p, o Term) []Term {
	var out []Term
	seen := make(map[Term]struct{})
	for _, t := range g.triples {
		if t.Predicate != p || t.Object != o {
			continue
		}
		if _, ok := seen[t.Subject]; ok {
			continue
		}
		seen[t.Subject] = struct{}{}
		out = append(out, t.Subject)
	}
	return out
}

// Closure returns every triple about s plus, recursively, every triple about
// a blank node reachable from s. Order follows insertion order of subjects as
// they are reached.
func (g *Graph) Closure(s Term) []Triple {
	var out []Triple
	visited := map[Term]struct{}{s: {}}
	queue := []Term{s}
	for len(queue) > 0 {
		subj := queue[0]
		queue = queue[1:]
		for _, t := range g.bySubject[subj] {
			out = append(out, t)
			if t.Object.IsBlank() {
				if _, ok := visited[t.Object]; !ok {
					visited[t.Object] = struct{}{}
					queue = append(queue, t.Object)
				}
			}
		}
	}
	return out
}

// Roots returns, in first-seen order, every subject that is not a blank node
// referenced as an object elsewhere. These are the entities a payload is about.
func (g *Graph) Roots() []Term {
	var out []Term
	seen := make(map[Term]struct{})
	for _, t := range g.triples {
		s := t.Subject
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		if s.IsBlank() && g.objects[s] > 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}
