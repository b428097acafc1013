package verify

import (
	"bytes"
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"xdao.co/nfa/artifact"
	"xdao.co/nfa/digest"
)

// prefetch resolves up to limit sources concurrently into per-index buffers
// and folds the buffers into engine strictly in index order.
//
// A slot is taken before a fetch starts and given back only after that
// source has been folded, so at most limit buffers are held at once. Slots
// are taken in index order, which guarantees the next source to fold always
// has a slot. The first failure cancels every in-flight fetch.
func (r *run) prefetch(ctx context.Context, engine *digest.Engine, limit int) error {
	n := len(r.sources)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	slots := make(chan struct{}, limit)
	bufs := make([]*bytes.Buffer, n)
	ready := make([]chan struct{}, n)
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	var launcher sync.WaitGroup
	launcher.Add(1)
	go func() {
		defer launcher.Done()
		for i := 0; i < n; i++ {
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return
			}
			g.Go(func() error {
				defer close(ready[i])
				buf := new(bytes.Buffer)
				if err := r.resolve(gctx, i, buf); err != nil {
					return err
				}
				bufs[i] = buf
				return nil
			})
		}
	}()

	folded := 0
fold:
	for i := 0; i < n; i++ {
		select {
		case <-ready[i]:
		case <-gctx.Done():
			break fold
		}
		if bufs[i] == nil {
			break fold
		}
		if err := engine.Update(bufs[i].Bytes()); err != nil {
			cancel()
			launcher.Wait()
			_ = g.Wait()
			return err
		}
		bufs[i] = nil
		folded++
		<-slots
	}

	if folded < n {
		cancel()
	}
	launcher.Wait()
	err := g.Wait()
	if folded == n {
		return err
	}
	if err == nil {
		// Every launched fetch succeeded but the parent context ended
		// before the rest were started.
		err = ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		return &artifact.Error{Kind: artifact.KindNetwork, Index: folded, Ref: r.sources[folded].Ref(), Op: "resolve", Err: err}
	}
	return err
}
