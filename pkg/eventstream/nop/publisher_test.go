package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/eventstream"
	"github.com/papercomputeco/parlor/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("creates a non-nil publisher", func() {
		p := nop.NewPublisher()
		Expect(p).NotTo(BeNil())
	})

	It("returns ErrNilTurnEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishTurn(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilTurnEvent))
	})

	It("succeeds for non-nil events and counts them", func() {
		p := nop.NewPublisher()
		err := p.PublishTurn(context.Background(), &eventstream.TurnRecordedEvent{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.PublishTurn(context.Background(), nil)).To(HaveOccurred())
		Expect(p.Published()).To(Equal(int64(1)))
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
