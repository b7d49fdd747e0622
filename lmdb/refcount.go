// Copyright 2023 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
package lmdb

import (
	"sync/atomic"
)

// refStripes is the number of stripes in the environment's dependent
// counter. Must be a power of two no larger than 256.
const refStripes = 16

type refStripe struct {
	n atomic.Int64
	// Keep each stripe on its own cache line.
	_ [56]byte
}

// refCounter counts an environment's outstanding dependents (open
// transactions). Increments are spread over stripes so concurrent
// transaction churn on different cores does not contend on one cache
// line; a dependent remembers its stripe and releases against it, so no
// stripe, and hence not the total, ever goes negative.
type refCounter struct {
	stripes [refStripes]refStripe
	ticket  atomic.Uint64
}

// acquire increments the counter and returns the stripe the dependent must
// release against.
func (c *refCounter) acquire() int {
	t := c.ticket.Add(1)
	// Fibonacci hashing spreads the ticket sequence over the stripes.
	idx := int((t * 0x9E3779B97F4A7C15) >> 60 & (refStripes - 1))
	c.stripes[idx].n.Add(1)
	return idx
}

// release decrements the stripe returned by the matching acquire.
func (c *refCounter) release(stripe int) {
	c.stripes[stripe].n.Add(-1)
}

// total sums the stripes. Only meaningful while no acquire or release is
// in flight, which Env.Close guarantees by parking the status in CLOSING
// first.
func (c *refCounter) total() int {
	var sum int64
	for i := range c.stripes {
		sum += c.stripes[i].n.Load()
	}
	return int(sum)
}
