package flow_test

import (
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/nicholas-fedor/updateflow/pkg/flow"
	"github.com/nicholas-fedor/updateflow/pkg/types"
	"github.com/nicholas-fedor/updateflow/pkg/types/mocks"
)

var _ = ginkgo.Describe("Guard", func() {
	var (
		guard   *flow.Guard
		service *mocks.MockService
	)

	ginkgo.BeforeEach(func() {
		guard = flow.NewGuard()
		service = mocks.NewMockService()
	})

	ginkgo.It("allows a single live controller", func() {
		first, err := guard.NewController(service, types.DefaultConfiguration())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(guard.Current()).To(gomega.BeIdenticalTo(first))

		second, err := guard.NewController(service, types.DefaultConfiguration())
		gomega.Expect(err).To(gomega.MatchError(flow.ErrControllerExists))
		gomega.Expect(second).To(gomega.BeNil())
	})

	ginkgo.It("frees the slot on teardown", func() {
		first, err := guard.NewController(service, types.DefaultConfiguration())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		first.OnTeardown()
		gomega.Expect(guard.Current()).To(gomega.BeNil())

		second, err := guard.NewController(service, types.DefaultConfiguration())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(second).NotTo(gomega.BeIdenticalTo(first))

		first.OnTeardown()
		gomega.Expect(guard.Current()).To(gomega.BeIdenticalTo(second))
	})

	ginkgo.It("rejects an invalid configuration", func() {
		_, err := guard.NewController(service, types.UpdateConfiguration{
			StrategyPreference:     types.StrategySilent,
			StalenessThresholdDays: types.Days(-2),
		})
		gomega.Expect(err).To(gomega.MatchError(flow.ErrInvalidConfiguration))
		gomega.Expect(guard.Current()).To(gomega.BeNil())
	})

	ginkgo.It("keeps guards independent", func() {
		_, err := guard.NewController(service, types.DefaultConfiguration())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		_, err = flow.NewGuard().NewController(service, types.DefaultConfiguration())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	})
})
