package stream

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ReconnectPlanner", func() {

	When("Computing the documented example progression", func() {
		It("yields 1s, 2s, 4s, 8s for initial=1s multiplier=2", func() {
			planner := newReconnectPlanner(time.Second, 30*time.Second, 2.0)

			expected := []time.Duration{
				1 * time.Second,
				2 * time.Second,
				4 * time.Second,
				8 * time.Second,
			}

			for i, want := range expected {
				plan := planner.next()
				Expect(plan.attempt).To(Equal(i))
				Expect(plan.delay).To(Equal(want), "delay for attempt %d", i)
			}
		})
	})

	When("The progression reaches the ceiling", func() {
		It("never exceeds the maximum delay", func() {
			planner := newReconnectPlanner(time.Second, 5*time.Second, 2.0)

			for i := 0; i < 10; i++ {
				plan := planner.next()
				Expect(plan.delay).To(BeNumerically("<=", 5*time.Second))
			}
		})
	})

	When("The planner is reset", func() {
		It("starts the progression over", func() {
			planner := newReconnectPlanner(time.Second, 30*time.Second, 2.0)

			planner.next()
			planner.next()
			planner.reset()

			plan := planner.next()
			Expect(plan.attempt).To(Equal(0))
			Expect(plan.delay).To(Equal(time.Second))
		})
	})
})
