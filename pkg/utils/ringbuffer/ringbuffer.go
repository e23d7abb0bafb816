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

// Package ringbuffer provides a fixed-capacity buffer that overwrites its
// oldest entry once full. It is not safe for concurrent use; callers hold
// their own locks.
package ringbuffer

type RingBuffer[T any] struct {
	buf  []T
	head int
	size int
}

func New[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{buf: make([]T, capacity)}
}

// Add appends v, overwriting the oldest entry when the buffer is full.
func (r *RingBuffer[T]) Add(v T) {
	r.buf[(r.head+r.size)%len(r.buf)] = v
	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

// Items returns the buffered values, oldest first.
func (r *RingBuffer[T]) Items() []T {
	items := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		items = append(items, r.buf[(r.head+i)%len(r.buf)])
	}
	return items
}

// Filter drops every buffered value for which keep returns false,
// preserving insertion order of the remainder.
func (r *RingBuffer[T]) Filter(keep func(T) bool) {
	kept := make([]T, 0, r.size)
	for _, v := range r.Items() {
		if keep(v) {
			kept = append(kept, v)
		}
	}
	r.head = 0
	r.size = len(kept)
	copy(r.buf, kept)
}

func (r *RingBuffer[T]) Len() int {
	return r.size
}

func (r *RingBuffer[T]) Cap() int {
	return len(r.buf)
}
