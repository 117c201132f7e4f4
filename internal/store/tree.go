package store

// tree is a task hierarchy flattened into an arena. Nodes are stored in
// breadth-first order, so a child's index is always greater than its
// parent's. Walking the arena by index replaces recursion everywhere a
// subtask hierarchy is copied, encoded or decoded, which keeps arbitrarily
// deep input from exhausting the stack.
type tree struct {
	nodes []treeNode
}

type treeNode struct {
	task     Task  // Scalar fields only; Subtasks is always nil here.
	parent   int   // -1 for the root.
	children []int // Indices into nodes, in subtask order.
}

// flatten copies root and all of its descendants into a new arena.
func flatten(root *Task) *tree {
	tr := &tree{}
	src := []*Task{root}
	parents := []int{-1}
	for i := 0; i < len(src); i++ {
		t := src[i]
		tr.add(t.copyScalars(), parents[i])
		for j := range t.Subtasks {
			src = append(src, &t.Subtasks[j])
			parents = append(parents, i)
		}
	}
	return tr
}

// add appends a node and links it to its parent. Nodes must be added in
// breadth-first order.
func (tr *tree) add(t Task, parent int) int {
	idx := len(tr.nodes)
	tr.nodes = append(tr.nodes, treeNode{task: t, parent: parent})
	if parent >= 0 {
		tr.nodes[parent].children = append(tr.nodes[parent].children, idx)
	}
	return idx
}

// build reassembles the nested Task value, leaves first.
func (tr *tree) build() Task {
	if len(tr.nodes) == 0 {
		return Task{}
	}
	built := make([]Task, len(tr.nodes))
	for i := len(tr.nodes) - 1; i >= 0; i-- {
		n := tr.nodes[i]
		t := n.task
		if len(n.children) > 0 {
			t.Subtasks = make([]Task, len(n.children))
			for k, c := range n.children {
				t.Subtasks[k] = built[c]
			}
		}
		built[i] = t
	}
	return built[0]
}

// size reports how many tasks the tree holds, root included.
func (tr *tree) size() int { return len(tr.nodes) }

// depth reports the number of levels below the root.
func (tr *tree) depth() int {
	levels := make([]int, len(tr.nodes))
	deepest := 0
	for i := 1; i < len(tr.nodes); i++ {
		levels[i] = levels[tr.nodes[i].parent] + 1
		if levels[i] > deepest {
			deepest = levels[i]
		}
	}
	return deepest
}

// CountTasks returns the number of tasks in t's hierarchy, t included.
func CountTasks(t *Task) int {
	return flatten(t).size()
}

// Depth returns how many subtask levels sit below t.
func Depth(t *Task) int {
	return flatten(t).depth()
}
