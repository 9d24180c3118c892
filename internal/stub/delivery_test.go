package stub_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/edgecomet/eventrelay/internal/client"
	"github.com/edgecomet/eventrelay/internal/common/configtypes"
	"github.com/edgecomet/eventrelay/internal/connection"
	"github.com/edgecomet/eventrelay/internal/event"
	"github.com/edgecomet/eventrelay/internal/lifecycle"
	"github.com/edgecomet/eventrelay/internal/stub"
	"github.com/edgecomet/eventrelay/pkg/types"
)

var _ = Describe("Asynchronous delivery to the stub server", func() {
	var (
		server *stub.Server
		logs   *observer.ObservedLogs
		logger *zap.Logger
	)

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)
		logger = zap.New(core)

		server = stub.New(zap.NewNop())
		Expect(server.Start("127.0.0.1:0")).To(Succeed())
		DeferCleanup(func() {
			server.SetResponseDelay(0)
			Expect(server.Shutdown()).To(Succeed())
		})
	})

	newAsyncClient := func(gracePeriod time.Duration, opts ...connection.AsyncOption) (*client.Client, *connection.AsyncConnection) {
		httpConn, err := connection.NewHTTPConnection(configtypes.HTTPTransportConfig{
			Enabled:     true,
			URL:         server.URL(),
			Timeout:     types.Duration(5 * time.Second),
			Compression: types.CompressionGzip,
		}, logger)
		Expect(err).ToNot(HaveOccurred())

		opts = append(opts, connection.WithGracePeriod(gracePeriod))
		async, err := connection.NewAsyncConnection(httpConn, logger, opts...)
		Expect(err).ToNot(HaveOccurred())

		return client.New(async, logger), async
	}

	Context("when every event is accepted", func() {
		It("delivers all events in submission order before Close returns", func() {
			c, _ := newAsyncClient(5 * time.Second)

			By("Sending ten events")
			var ids []string
			for i := 0; i < 10; i++ {
				ev := event.NewBuilder().WithMessage("ordered").WithServerName("e2e").Build()
				ids = append(ids, ev.ID)
				c.SendEvent(ev)
			}

			By("Closing the client")
			Expect(c.Close()).To(Succeed())

			By("Verifying the stub stored them in order")
			var received []string
			for _, ev := range server.Events() {
				received = append(received, ev.ID)
			}
			Expect(received).To(Equal(ids))
		})

		It("applies builder helpers before delivery", func() {
			c, _ := newAsyncClient(5 * time.Second)
			c.AddBuilderHelper(client.DefaultsHelper(configtypes.EventDefaults{
				Environment: "e2e",
				Tags:        map[string]string{"suite": "delivery"},
			}))

			c.SendBuilder(event.NewBuilder().WithMessage("with defaults"))
			Expect(c.Close()).To(Succeed())

			Expect(server.Events()).To(HaveLen(1))
			stored := server.Events()[0]
			Expect(stored.Environment).To(Equal("e2e"))
			Expect(stored.Tags).To(HaveKeyWithValue("suite", "delivery"))
		})
	})

	Context("when one delivery fails", func() {
		It("logs the failure and keeps delivering later events", func() {
			c, _ := newAsyncClient(5 * time.Second)

			first := event.NewBuilder().WithMessage("first").Build()
			second := event.NewBuilder().WithMessage("second").Build()
			third := event.NewBuilder().WithMessage("third").Build()

			By("Delivering the first event")
			c.SendEvent(first)
			Eventually(server.EventCount).WithTimeout(5 * time.Second).Should(Equal(1))

			By("Making the stub reject the next request")
			server.FailNext(1)
			c.SendEvent(second)
			c.SendEvent(third)
			Expect(c.Close()).To(Succeed())

			By("Verifying the first and third events arrived")
			var received []string
			for _, ev := range server.Events() {
				received = append(received, ev.ID)
			}
			Expect(received).To(Equal([]string{first.ID, third.ID}))

			By("Verifying exactly one failure was logged, for the second event")
			failures := logs.FilterMessage("An error occurred while sending the event").All()
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].ContextMap()).To(HaveKeyWithValue("event_id", second.ID))
		})
	})

	Context("when the stub is too slow for the grace period", func() {
		It("abandons the remaining events and closes within bounded time", func() {
			server.SetResponseDelay(300 * time.Millisecond)
			c, _ := newAsyncClient(100 * time.Millisecond)

			for i := 0; i < 5; i++ {
				c.SendMessage(event.LevelInfo, "slow")
			}

			start := time.Now()
			Expect(c.Close()).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))

			Expect(logs.FilterMessage("Graceful shutdown took too much time, forcing the shutdown").Len()).To(Equal(1))
			abandoned := logs.FilterMessage("Events failed to be delivered before the shutdown").All()
			Expect(abandoned).To(HaveLen(1))
			Expect(abandoned[0].ContextMap()["abandoned"]).To(BeNumerically(">=", 4))
		})
	})

	Context("when the process shuts down", func() {
		It("flushes queued events through the lifecycle hook", func() {
			hooks := lifecycle.New(logger)
			c, _ := newAsyncClient(5*time.Second, connection.WithLifecycle(hooks))

			for i := 0; i < 3; i++ {
				c.SendMessage(event.LevelError, "flushed on exit")
			}

			By("Running the shutdown hooks instead of closing the client")
			hooks.Run()

			Expect(server.EventCount()).To(Equal(3))
			Expect(hooks.Len()).To(Equal(0))

			By("Closing afterwards is a no-op")
			Expect(c.Close()).To(Succeed())
		})
	})
})
