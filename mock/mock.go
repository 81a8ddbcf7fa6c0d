// Package mock provides test doubles for analyst interfaces using function
// fields.
package mock

import (
	"context"

	"github.com/fwojciec/analyst"
)

// Interface compliance checks.
var (
	_ analyst.Provider = (*Provider)(nil)
	_ analyst.Invoker  = (*Invoker)(nil)
)

// Provider is a test double for analyst.Provider.
// Set ChatFn before calling Chat.
type Provider struct {
	ChatFn func(ctx context.Context, req analyst.Request) (analyst.Response, error)
}

// Chat delegates to ChatFn.
func (p *Provider) Chat(ctx context.Context, req analyst.Request) (analyst.Response, error) {
	return p.ChatFn(ctx, req)
}

// Invoker is a test double for analyst.Invoker.
// Set InvokeFn before calling Invoke.
type Invoker struct {
	InvokeFn func(ctx context.Context, sql string) string
}

// Invoke delegates to InvokeFn.
func (i *Invoker) Invoke(ctx context.Context, sql string) string {
	return i.InvokeFn(ctx, sql)
}
