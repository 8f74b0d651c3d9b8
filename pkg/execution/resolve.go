package execution

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cascadehq/cascade/pkg/fieldpath"
)

// ErrFieldNotResolved indicates a field reference that matches nothing in the
// execution context.
var ErrFieldNotResolved = errors.New("field reference not resolved")

// Reserved path prefixes for field references.
const (
	prefixTrigger   = "trigger"
	prefixTriggers  = "triggers"
	prefixNode      = "node"
	prefixVariables = "variables"
	prefixMetadata  = "metadata"
	prefixExecution = "execution"
)

// ResolveField resolves a field reference against the context. Explicit forms
// ("trigger.amount", "node.fetch.body.total", "variables.region") are exact.
// A bare name resolves as a variable first; when no variable matches, the
// node outputs are probed in sorted node-ID order and the first output tree
// the path resolves in wins. The fallback is best effort: with several
// upstream outputs carrying the same field it picks the lexicographically
// first, so explicit node paths are the dependable form.
func ResolveField(c *Context, expr string) (any, error) {
	path, err := fieldpath.Parse(expr)
	if err != nil {
		return nil, err
	}

	switch path.Head() {
	case prefixTrigger, prefixTriggers, prefixNode, prefixVariables, prefixMetadata, prefixExecution:
		value, err := path.Resolve(c.TemplateData())
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotResolved, expr)
		}

		return value, nil
	}

	if value, err := path.Resolve(c.variables); err == nil {
		return value, nil
	}

	nodeIDs := make([]string, 0, len(c.nodeOutputs))
	for id := range c.nodeOutputs {
		nodeIDs = append(nodeIDs, id)
	}

	sort.Strings(nodeIDs)

	for _, id := range nodeIDs {
		if value, err := path.Resolve(c.nodeOutputs[id]); err == nil {
			return value, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrFieldNotResolved, expr)
}
