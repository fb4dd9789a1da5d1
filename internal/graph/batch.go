package graph

// OpKind selects what an Op does.
type OpKind int

const (
	// OpUpsert replaces all facts of a file.
	OpUpsert OpKind = iota
	// OpRemove deletes a file node and its outgoing edges.
	OpRemove
	// OpRelink replaces the edges of an existing file.
	OpRelink
)

func (k OpKind) String() string {
	switch k {
	case OpUpsert:
		return "upsert"
	case OpRemove:
		return "remove"
	case OpRelink:
		return "relink"
	default:
		return "unknown"
	}
}

// Op is one graph mutation.
type Op struct {
	Kind  OpKind
	Facts FileFacts    // OpUpsert
	Path  string       // OpRemove, OpRelink
	Edges []ImportEdge // OpRelink
}

func (o Op) path() string {
	if o.Kind == OpUpsert {
		return o.Facts.File.Path
	}
	return o.Path
}

// Batch is an ordered list of operations applied atomically by Graph.Apply.
type Batch []Op

// Paths returns the distinct paths the batch touches, in order.
func (b Batch) Paths() []string {
	seen := make(map[string]bool, len(b))
	var out []string
	for _, op := range b {
		if p := op.path(); !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
