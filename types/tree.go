package types

import (
	"time"

	"github.com/ethereum-optimism/infra/op-harness/expect"
)

// TestTreeNode represents a node in the report tree
type TestTreeNode struct {
	ID       string
	Name     string
	FullName string
	Type     TestTreeNodeType
	Tags     []string

	Status   TestStatus
	Duration time.Duration
	Error    error
	Runs     int
	// Failed holds the failed assertions of the latest run.
	Failed []*expect.Assertion

	Children []*TestTreeNode
	Parent   *TestTreeNode
	Depth    int

	IsVisible bool
}

// TestTreeNodeType defines the type of node in the test tree
type TestTreeNodeType string

const (
	NodeTypeRoot  TestTreeNodeType = "root"
	NodeTypeSuite TestTreeNodeType = "suite"
	NodeTypeTest  TestTreeNodeType = "test"
)

// TestTreeStats contains aggregated statistics for a tree node
type TestTreeStats struct {
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Errored  int
	Aborted  int
	Pending  int
	PassRate float64
	Status   TestStatus
}

// TestTree is the report view of a run
type TestTree struct {
	Root      *TestTreeNode
	Stats     TestTreeStats
	Duration  time.Duration
	RunID     string
	Timestamp time.Time

	AllNodes    []*TestTreeNode
	TestNodes   []*TestTreeNode
	FailedNodes []*TestTreeNode

	nodesByID map[string]*TestTreeNode
}

// BuildTestTree creates a TestTree from root suites after (or during) a run.
// Only jobs listed in include are kept when include is non-nil.
func BuildTestTree(roots []Node, runID string, include func(Node) bool) *TestTree {
	tree := &TestTree{
		RunID:     runID,
		Timestamp: time.Now(),
		nodesByID: make(map[string]*TestTreeNode),
		Root: &TestTreeNode{
			ID:        "root",
			Name:      "Test Results",
			Type:      NodeTypeRoot,
			IsVisible: true,
		},
	}
	tree.nodesByID["root"] = tree.Root

	for _, n := range roots {
		tree.addNode(tree.Root, n, include)
	}
	tree.Stats = calculateNodeStats(tree.Root)
	tree.Duration = tree.Root.Duration
	return tree
}

func (tree *TestTree) addNode(parent *TestTreeNode, n Node, include func(Node) bool) {
	if include != nil && !include(n) {
		return
	}
	job := n.Base()
	node := &TestTreeNode{
		ID:        job.ID,
		Name:      job.Name,
		FullName:  job.FullName,
		Tags:      job.TagNames,
		Parent:    parent,
		Depth:     parent.Depth + 1,
		IsVisible: true,
	}
	switch v := n.(type) {
	case *Suite:
		node.Type = NodeTypeSuite
		for _, child := range v.Jobs {
			tree.addNode(node, child, include)
		}
		if len(node.Children) == 0 && include != nil {
			return
		}
	case *Test:
		node.Type = NodeTypeTest
		node.Status = v.Status()
		node.Runs = len(v.Results())
		if r := v.LastResults(); r != nil {
			node.Duration = r.Duration
			node.Error = r.Error
			node.Failed = r.Failed()
		}
	}

	parent.Children = append(parent.Children, node)
	tree.AllNodes = append(tree.AllNodes, node)
	tree.nodesByID[node.ID] = node
	if node.Type == NodeTypeTest {
		tree.TestNodes = append(tree.TestNodes, node)
		if node.Status == TestStatusFail || node.Status == TestStatusError {
			tree.FailedNodes = append(tree.FailedNodes, node)
		}
	}
}

// calculateNodeStats calculates statistics bottom-up and stores container
// status and duration
func calculateNodeStats(node *TestTreeNode) TestTreeStats {
	stats := TestTreeStats{}
	if node.Type != NodeTypeTest {
		node.Duration = 0
	}
	if node.Type == NodeTypeTest {
		stats.Total = 1
		switch node.Status {
		case TestStatusPass:
			stats.Passed = 1
		case TestStatusFail:
			stats.Failed = 1
		case TestStatusSkip:
			stats.Skipped = 1
		case TestStatusError:
			stats.Errored = 1
		case TestStatusAborted:
			stats.Aborted = 1
		default:
			stats.Pending = 1
		}
	}

	for _, child := range node.Children {
		childStats := calculateNodeStats(child)
		stats.Total += childStats.Total
		stats.Passed += childStats.Passed
		stats.Failed += childStats.Failed
		stats.Skipped += childStats.Skipped
		stats.Errored += childStats.Errored
		stats.Aborted += childStats.Aborted
		stats.Pending += childStats.Pending
		if node.Type != NodeTypeTest {
			node.Duration += child.Duration
		}
	}

	if stats.Total > 0 {
		stats.PassRate = float64(stats.Passed) / float64(stats.Total) * 100
	}

	switch {
	case stats.Errored > 0:
		stats.Status = TestStatusError
	case stats.Failed > 0:
		stats.Status = TestStatusFail
	case stats.Aborted > 0:
		stats.Status = TestStatusAborted
	case stats.Passed > 0:
		stats.Status = TestStatusPass
	case stats.Skipped > 0:
		stats.Status = TestStatusSkip
	default:
		stats.Status = TestStatusPending
	}

	if node.Type != NodeTypeTest {
		node.Status = stats.Status
	}
	return stats
}

// GetTestStats returns statistics for this node
func (n *TestTreeNode) GetTestStats() TestTreeStats {
	return calculateNodeStats(n)
}

// Walk traverses the tree calling the visitor function for each node
func (tree *TestTree) Walk(visitor func(*TestTreeNode) bool) {
	tree.walkNode(tree.Root, visitor)
}

func (tree *TestTree) walkNode(node *TestTreeNode, visitor func(*TestTreeNode) bool) {
	if !visitor(node) {
		return // Stop traversal if visitor returns false
	}
	for _, child := range node.Children {
		tree.walkNode(child, visitor)
	}
}

// FindNode finds a node by job ID
func (tree *TestTree) FindNode(id string) *TestTreeNode {
	return tree.nodesByID[id]
}

// GetVisibleNodes returns all currently visible nodes
func (tree *TestTree) GetVisibleNodes() []*TestTreeNode {
	var visible []*TestTreeNode
	tree.Walk(func(node *TestTreeNode) bool {
		if node.IsVisible {
			visible = append(visible, node)
		}
		return true
	})
	return visible
}

// ShowOnlyFailed shows only failed tests and their parents
func (tree *TestTree) ShowOnlyFailed() {
	tree.Walk(func(node *TestTreeNode) bool {
		node.IsVisible = false
		return true
	})
	for _, node := range tree.FailedNodes {
		for current := node; current != nil; current = current.Parent {
			current.IsVisible = true
		}
	}
}

// ShowAll makes all nodes visible
func (tree *TestTree) ShowAll() {
	tree.Walk(func(node *TestTreeNode) bool {
		node.IsVisible = true
		return true
	})
}
