package vlmrun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const defaultPageSize = 10

// ListOptions controls a paginated listing.
type ListOptions struct {
	// Skip is the offset of the first item.
	Skip int
	// Limit caps the number of items yielded; zero means all.
	Limit int
	// PageSize is the number of items requested per call. Defaults to 10.
	PageSize int
	// Filter is an optional boolean expression evaluated against each item's
	// JSON fields, e.g. `status == "completed" && domain startsWith "document."`.
	Filter string
}

type pageFetcher[T any] func(ctx context.Context, skip, limit int) ([]T, error)

// Pager is a lazy, forward-only sequence over a skip/limit endpoint. Every
// call to All or Collect starts over from ListOptions.Skip.
type Pager[T any] struct {
	opts    ListOptions
	fetch   pageFetcher[T]
	program *vm.Program
	err     error
}

func newPager[T any](opts ListOptions, fetch pageFetcher[T]) *Pager[T] {
	p := &Pager[T]{opts: opts, fetch: fetch}
	if p.opts.PageSize <= 0 {
		p.opts.PageSize = defaultPageSize
	}
	switch {
	case opts.Skip < 0:
		p.err = newValidationError("skip must be non-negative, got %d", opts.Skip)
	case opts.Limit < 0:
		p.err = newValidationError("limit must be non-negative, got %d", opts.Limit)
	}
	if p.err == nil && strings.TrimSpace(opts.Filter) != "" {
		p.program, p.err = compileFilter(opts.Filter)
	}
	return p
}

func compileFilter(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, newError(KindValidation, fmt.Sprintf("invalid filter %q: %v", expression, err), err)
	}
	return program, nil
}

// All yields items in server order. Iteration stops after the first error.
func (p *Pager[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if p.err != nil {
			yield(zero, p.err)
			return
		}
		skip := p.opts.Skip
		yielded := 0
		var previous []byte
		for {
			page, err := p.fetch(ctx, skip, p.opts.PageSize)
			if err != nil {
				yield(zero, err)
				return
			}
			// An endpoint that ignores skip serves the same page forever.
			encoded, _ := json.Marshal(page)
			if previous != nil && bytes.Equal(encoded, previous) {
				return
			}
			previous = encoded
			for _, item := range page {
				ok, err := p.matches(item)
				if err != nil {
					yield(zero, err)
					return
				}
				if !ok {
					continue
				}
				if !yield(item, nil) {
					return
				}
				yielded++
				if p.opts.Limit > 0 && yielded >= p.opts.Limit {
					return
				}
			}
			// A short page ends the listing; an oversized one means the
			// endpoint ignored pagination and returned everything.
			if len(page) != p.opts.PageSize {
				return
			}
			skip += len(page)
		}
	}
}

// decodeList decodes a list response, bare array or enveloped.
func decodeList[T any](resp *Response) ([]T, error) {
	items, err := listPayload(resp)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(items, &out); err != nil {
		e := newDecodeError(resp.StatusCode, resp.Body, err)
		e.RequestID = resp.RequestID
		return nil, e
	}
	return out, nil
}

// Collect drains the pager into a slice.
func (p *Pager[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for item, err := range p.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// matches evaluates the filter against the item's JSON representation.
func (p *Pager[T]) matches(item T) (bool, error) {
	if p.program == nil {
		return true, nil
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("encode item for filter: %w", err)
	}
	env := map[string]any{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, newValidationError("filter requires object items: %v", err)
	}
	result, err := expr.Run(p.program, env)
	if err != nil {
		return false, newError(KindValidation, fmt.Sprintf("evaluate filter: %v", err), err)
	}
	matched, _ := result.(bool)
	return matched, nil
}
