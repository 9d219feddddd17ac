package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lanepoint/kioskstream/logger"
)

func TestProbe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Probe Suite")
}

var _ = Describe("ExistenceProbe", Ordered, func() {
	var server *httptest.Server
	var existenceProbe *ExistenceProbe

	logger := logger.MockLogger(GinkgoWriter)
	ctx := context.Background()

	setupProbe := func(status int) {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		var err error
		existenceProbe, err = New(logger, server.URL)
		Expect(err).ToNot(HaveOccurred())
	}

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	When("The resource exists", func() {
		BeforeEach(func() {
			setupProbe(http.StatusOK)
		})

		It("is inconclusive", func() {
			Expect(existenceProbe.Check(ctx)).To(Equal(Inconclusive))
		})
	})

	When("The resource has been removed", func() {
		BeforeEach(func() {
			setupProbe(http.StatusNotFound)
		})

		It("reports gone", func() {
			Expect(existenceProbe.Check(ctx)).To(Equal(Gone))
		})
	})

	When("The resource is gone for good", func() {
		BeforeEach(func() {
			setupProbe(http.StatusGone)
		})

		It("reports gone", func() {
			Expect(existenceProbe.Check(ctx)).To(Equal(Gone))
		})
	})

	When("The backend is erroring", func() {
		BeforeEach(func() {
			setupProbe(http.StatusInternalServerError)
		})

		It("is inconclusive", func() {
			Expect(existenceProbe.Check(ctx)).To(Equal(Inconclusive))
		})
	})

	When("The probe itself cannot reach the backend", func() {
		BeforeEach(func() {
			var err error
			existenceProbe, err = New(logger, "http://localhost:0")
			Expect(err).ToNot(HaveOccurred())
		})

		It("is inconclusive", func() {
			Expect(existenceProbe.Check(ctx)).To(Equal(Inconclusive))
		})
	})
})
