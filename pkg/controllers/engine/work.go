/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/courierd/courierd/pkg/operator/logging"
)

// Parallelize runs fn over n work items with at most concurrency in flight.
// A failing or panicking item is counted and logged without cancelling its
// siblings. It returns the failure count once every item has finished.
func Parallelize(ctx context.Context, concurrency, n int, fn func(ctx context.Context, i int) error) int {
	if concurrency < 1 {
		concurrency = 1
	}
	var failures atomic.Int64
	g := errgroup.Group{}
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					failures.Add(1)
					logging.FromContext(ctx).Error(fmt.Errorf("%v", r), "work item panicked", "item", i)
				}
			}()
			if err := fn(ctx, i); err != nil {
				failures.Add(1)
				logging.FromContext(ctx).Error(err, "work item failed", "item", i)
			}
			return nil
		})
	}
	// Item errors are absorbed above, so Wait only gates on completion.
	_ = g.Wait()
	return int(failures.Load())
}
