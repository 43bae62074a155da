package revision

import (
	"context"
	"sort"
	"sync"
)

// MemoryAdapter serves revisions held in memory. Each revision maps paths to contents.
type MemoryAdapter struct {
	mutex     sync.RWMutex
	revisions map[string]map[string]string
	aliases   map[string]string
	parents   map[string][]string
}

// NewMemoryAdapter creates an empty adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		revisions: make(map[string]map[string]string),
		aliases:   make(map[string]string),
		parents:   make(map[string][]string),
	}
}

// SetParents records the parent revisions of revision for merge base lookups.
func (adapter *MemoryAdapter) SetParents(revision string, parents ...string) {
	adapter.mutex.Lock()
	defer adapter.mutex.Unlock()
	adapter.parents[revision] = append([]string(nil), parents...)
}

// SetRevision stores a complete file tree under revision.
func (adapter *MemoryAdapter) SetRevision(revision string, files map[string]string) {
	adapter.mutex.Lock()
	defer adapter.mutex.Unlock()

	tree := make(map[string]string, len(files))
	for filePath, content := range files {
		tree[NormalizePath(filePath)] = content
	}
	adapter.revisions[revision] = tree
}

// SetAlias makes ref resolve to an existing revision.
func (adapter *MemoryAdapter) SetAlias(ref string, revision string) {
	adapter.mutex.Lock()
	defer adapter.mutex.Unlock()
	adapter.aliases[ref] = revision
}

// ResolveRevision implements Adapter.
func (adapter *MemoryAdapter) ResolveRevision(executionContext context.Context, ref string) (string, error) {
	adapter.mutex.RLock()
	defer adapter.mutex.RUnlock()
	revision, _, resolveError := adapter.tree(ref)
	return revision, resolveError
}

// ChangedFiles implements Adapter by comparing the two stored trees.
func (adapter *MemoryAdapter) ChangedFiles(executionContext context.Context, baseRef string, targetRef string) ([]string, error) {
	adapter.mutex.RLock()
	defer adapter.mutex.RUnlock()

	_, baseTree, baseError := adapter.tree(baseRef)
	if baseError != nil {
		return nil, baseError
	}
	_, targetTree, targetError := adapter.tree(targetRef)
	if targetError != nil {
		return nil, targetError
	}

	changed := make([]string, 0)
	for filePath, targetContent := range targetTree {
		if baseContent, existed := baseTree[filePath]; !existed || baseContent != targetContent {
			changed = append(changed, filePath)
		}
	}
	for filePath := range baseTree {
		if _, exists := targetTree[filePath]; !exists {
			changed = append(changed, filePath)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// ReadFile implements Adapter.
func (adapter *MemoryAdapter) ReadFile(executionContext context.Context, ref string, filePath string) (string, error) {
	adapter.mutex.RLock()
	defer adapter.mutex.RUnlock()

	_, tree, resolveError := adapter.tree(ref)
	if resolveError != nil {
		return "", resolveError
	}
	content, exists := tree[NormalizePath(filePath)]
	if !exists {
		return "", FileNotFoundError{Ref: ref, Path: filePath}
	}
	return content, nil
}

// ListFiles implements Adapter.
func (adapter *MemoryAdapter) ListFiles(executionContext context.Context, ref string) ([]string, error) {
	adapter.mutex.RLock()
	defer adapter.mutex.RUnlock()

	_, tree, resolveError := adapter.tree(ref)
	if resolveError != nil {
		return nil, resolveError
	}
	files := make([]string, 0, len(tree))
	for filePath := range tree {
		files = append(files, filePath)
	}
	sort.Strings(files)
	return files, nil
}

// MergeBase implements Adapter. The nearest ancestor of targetRef that is also an ancestor of
// baseRef wins; a revision counts as its own ancestor.
func (adapter *MemoryAdapter) MergeBase(executionContext context.Context, baseRef string, targetRef string) (string, error) {
	adapter.mutex.RLock()
	defer adapter.mutex.RUnlock()

	baseRevision, _, baseError := adapter.tree(baseRef)
	if baseError != nil {
		return "", baseError
	}
	targetRevision, _, targetError := adapter.tree(targetRef)
	if targetError != nil {
		return "", targetError
	}

	baseAncestors := make(map[string]struct{})
	for _, ancestor := range adapter.ancestors(baseRevision) {
		baseAncestors[ancestor] = struct{}{}
	}
	for _, ancestor := range adapter.ancestors(targetRevision) {
		if _, shared := baseAncestors[ancestor]; shared {
			return ancestor, nil
		}
	}
	return "", ErrNoMergeBase
}

// ancestors lists revision and its ancestors in breadth-first order.
func (adapter *MemoryAdapter) ancestors(revision string) []string {
	visited := map[string]struct{}{revision: {}}
	ordered := []string{revision}
	for queueIndex := 0; queueIndex < len(ordered); queueIndex++ {
		for _, parent := range adapter.parents[ordered[queueIndex]] {
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = struct{}{}
			ordered = append(ordered, parent)
		}
	}
	return ordered
}

func (adapter *MemoryAdapter) tree(ref string) (string, map[string]string, error) {
	revision := ref
	if aliased, isAlias := adapter.aliases[ref]; isAlias {
		revision = aliased
	}
	tree, exists := adapter.revisions[revision]
	if !exists {
		return "", nil, RefNotFoundError{Ref: ref}
	}
	return revision, tree, nil
}
