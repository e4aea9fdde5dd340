// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import "golang.org/x/sync/errgroup"

// parallel calls fn(i) for every i in [0,n). The range is cut into at most
// NumThreads contiguous chunks, one goroutine each; fn must only write
// state owned by index i.
func (p *Problem) parallel(n int, fn func(i int)) {
	if p.threads <= 1 || n < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunks := min(p.threads, n)
	size := (n + chunks - 1) / chunks

	var g errgroup.Group
	g.SetLimit(p.threads)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				fn(i)
			}
			return nil
		})
	}
	_ = g.Wait()
}
