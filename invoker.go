package analyst

import "context"

// Invoker executes generated SQL through the tool server and returns the
// outcome as text. Implementations convert every failure below the
// orchestration loop — safety rejections, engine errors, framing and
// transport faults — into a descriptive string, so Invoke has no error
// return: whatever comes back flows to the formatting pass as context.
type Invoker interface {
	Invoke(ctx context.Context, sql string) string
}
