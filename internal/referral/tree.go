package referral

import "strings"

// Identity is what the current session knows about the signed-in member.
type Identity struct {
	ID       int64
	Username string
	Email    string
}

func (i Identity) matches(r Record) bool {
	if i.ID != 0 && i.ID == r.ID {
		return true
	}
	if i.Username != "" && i.Username == r.Username {
		return true
	}
	return i.Email != "" && strings.EqualFold(i.Email, r.Email)
}

type Node struct {
	Record
	Children []*Node `json:"children"`
}

// Tree is rebuilt from scratch for every payload and never mutated afterwards.
type Tree struct {
	Root *Node
	// Unreachable holds ids of records that could not be placed under Root.
	Unreachable []int64
	// Revisited holds ids the builder refused to descend into a second time,
	// which happens on sponsor cycles and duplicate ids.
	Revisited []int64
}

type Aggregates struct {
	DirectCount   int `json:"directCount"`
	TotalDownline int `json:"totalDownline"`
}

// Row is one entry of the flat member list.
type Row struct {
	Record
	DisplayName   string `json:"displayName"`
	DirectCount   int    `json:"directCount"`
	TotalDownline int    `json:"totalDownline"`
}

// BuildTree normalizes raw and roots the hierarchy at the record matching
// current, or at the first record when nothing matches. It returns nil when
// no record is usable.
func BuildTree(raw []RawRecord, current Identity) *Tree {
	records := NormalizeAll(raw)
	if len(records) == 0 {
		return nil
	}

	rootIdx := 0
	for i, r := range records {
		if current.matches(r) {
			rootIdx = i
			break
		}
	}

	b := builder{
		records:   records,
		bySponsor: make(map[int64][]int, len(records)),
		visited:   make(map[int64]bool, len(records)),
		handled:   make([]bool, len(records)),
	}
	for i, r := range records {
		if r.SponsorID != nil {
			b.bySponsor[*r.SponsorID] = append(b.bySponsor[*r.SponsorID], i)
		}
	}

	t := &Tree{Root: b.attach(rootIdx)}
	t.Revisited = b.revisited
	for i, done := range b.handled {
		if !done {
			t.Unreachable = append(t.Unreachable, records[i].ID)
		}
	}
	return t
}

type builder struct {
	records   []Record
	bySponsor map[int64][]int
	visited   map[int64]bool
	handled   []bool
	revisited []int64
}

func (b *builder) attach(idx int) *Node {
	rec := b.records[idx]
	b.visited[rec.ID] = true
	b.handled[idx] = true

	node := &Node{Record: rec, Children: []*Node{}}
	for _, ci := range b.bySponsor[rec.ID] {
		child := b.records[ci]
		if b.visited[child.ID] {
			b.handled[ci] = true
			b.revisited = append(b.revisited, child.ID)
			continue
		}
		node.Children = append(node.Children, b.attach(ci))
	}
	return node
}

// Aggregates returns the root's counts, or zero counts for an empty tree.
func (t *Tree) Aggregates() Aggregates {
	if t == nil {
		return Aggregates{}
	}
	return ComputeAggregates(t.Root)
}

// ComputeAggregates counts the node's direct referrals and its whole downline.
func ComputeAggregates(n *Node) Aggregates {
	if n == nil {
		return Aggregates{}
	}
	agg := Aggregates{DirectCount: len(n.Children), TotalDownline: len(n.Children)}
	for _, c := range n.Children {
		agg.TotalDownline += ComputeAggregates(c).TotalDownline
	}
	return agg
}

// FlattenToLevels lists every member below the root in pre-order, children
// in input order. Level is the depth below the root, starting at 1.
func FlattenToLevels(t *Tree) []Row {
	rows := []Row{}
	if t == nil || t.Root == nil {
		return rows
	}
	for _, c := range t.Root.Children {
		walk(c, 1, &rows)
	}
	return rows
}

func walk(n *Node, depth int, rows *[]Row) int {
	idx := len(*rows)
	rec := n.Record
	rec.Level = depth
	*rows = append(*rows, Row{
		Record:      rec,
		DisplayName: rec.DisplayName(),
		DirectCount: len(n.Children),
	})

	total := len(n.Children)
	for _, c := range n.Children {
		total += walk(c, depth+1, rows)
	}
	(*rows)[idx].TotalDownline = total
	return total
}
