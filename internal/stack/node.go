package stack

import (
	"context"

	"cascade.dev/cascade/internal/github"
)

// Node is a branch paired with the branches whose pull requests declared it
// as their base at discovery time. Nodes are immutable after discovery;
// traversal never re-queries the directory.
type Node struct {
	Branch   string
	PR       github.PullRequestInfo
	Children []*Node
}

// Discover builds the forest of branches whose pull requests are
// (transitively) based on root. Children are ordered as the directory
// returns them. A branch reached twice, including via a base cycle, is only
// placed at its first discovery.
func Discover(ctx context.Context, dir Directory, root string) ([]*Node, error) {
	visited := map[string]bool{root: true}
	return discoverChildren(ctx, dir, root, visited)
}

func discoverChildren(ctx context.Context, dir Directory, base string, visited map[string]bool) ([]*Node, error) {
	prs, err := dir.ListOpenByBase(ctx, base)
	if err != nil {
		return nil, err
	}

	var nodes []*Node
	for _, pr := range prs {
		if pr.Head == "" || visited[pr.Head] {
			continue
		}
		visited[pr.Head] = true

		children, err := discoverChildren(ctx, dir, pr.Head, visited)
		if err != nil {
			return nil, err
		}

		nodes = append(nodes, &Node{
			Branch:   pr.Head,
			PR:       pr,
			Children: children,
		})
	}
	return nodes, nil
}

// Branches returns the branch names of the forest in pre-order, parents
// before their descendants.
func Branches(forest []*Node) []string {
	var out []string
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n.Branch)
			walk(n.Children)
		}
	}
	walk(forest)
	return out
}
