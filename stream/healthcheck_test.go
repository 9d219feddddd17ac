package stream

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HealthSchedule", func() {
	start := time.Date(2024, 8, 23, 12, 0, 0, 0, time.UTC)

	conf := Config{
		HealthCheckInitialInterval: 5 * time.Second,
		HealthCheckMaxInterval:     5 * time.Minute,
		HealthCheckMultiplier:      2.0,
		HealthCheckMaxAttempts:     2,
		HealthCheckMaxElapsed:      time.Hour,
	}

	When("Neither cap has been hit", func() {
		It("permits the next attempt", func() {
			schedule := newHealthSchedule(conf, start)
			schedule.nextInterval()

			Expect(schedule.exhausted(start.Add(time.Minute))).To(BeNil())
		})
	})

	When("The attempt cap is reached", func() {
		It("stops with a terminal error", func() {
			schedule := newHealthSchedule(conf, start)
			schedule.nextInterval()
			schedule.nextInterval()

			err := schedule.exhausted(start.Add(time.Minute))
			Expect(err).To(HaveOccurred())

			var exhausted *HealthCheckExhaustedError
			Expect(errors.As(err, &exhausted)).To(BeTrue())
			Expect(exhausted.Attempts).To(Equal(2))
			Expect(IsTerminal(err)).To(BeTrue())
		})
	})

	When("The elapsed cap is exceeded", func() {
		It("stops with a terminal error even with attempts to spare", func() {
			schedule := newHealthSchedule(conf, start)
			schedule.nextInterval()

			err := schedule.exhausted(start.Add(2 * time.Hour))
			Expect(err).To(HaveOccurred())

			var exhausted *HealthCheckExhaustedError
			Expect(errors.As(err, &exhausted)).To(BeTrue())
			Expect(exhausted.Attempts).To(Equal(1), "the attempt cap was not the one that fired")
			Expect(exhausted.Elapsed).To(Equal(2 * time.Hour))
			Expect(IsTerminal(err)).To(BeTrue())
		})
	})

	When("Probe intervals are consumed", func() {
		It("follows the backoff progression", func() {
			schedule := newHealthSchedule(conf, start)

			Expect(schedule.nextInterval()).To(Equal(5 * time.Second))
			Expect(schedule.nextInterval()).To(Equal(10 * time.Second))
			Expect(schedule.attempt).To(Equal(2))
		})
	})
})
