// Command sipeventdemo wires a Notifier and a Subscriber for the
// "weather" event package of spec.md §8 over a real sipgo transport and
// runs the happy-path scenario: SUBSCRIBE, the initial NOTIFY that
// Notifier.Start sends, and an unsubscribe after five seconds unless the
// subscription has already terminated.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/juju/clock"

	"github.com/rainliu/sipevent/eventsub"
	"github.com/rainliu/sipevent/sipadapter"
	"github.com/rainliu/sipevent/sipstack"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	notifierCfg := sipadapter.Config{
		ListenAddr:    "127.0.0.1:5070",
		Network:       "udp",
		UserAgentName: "sipeventdemo-notifier",
		ContactHost:   "127.0.0.1",
		ContactPort:   5070,
		Username:      "weatherstation",
	}
	subscriberCfg := sipadapter.Config{
		ListenAddr:    "127.0.0.1:5071",
		Network:       "udp",
		UserAgentName: "sipeventdemo-subscriber",
		ContactHost:   "127.0.0.1",
		ContactPort:   5071,
		Username:      "weatherwatcher",
	}

	timers := sipstack.NewTimers(clock.WallClock)

	var notifierStack *sipadapter.Stack
	notifierStack, err := sipadapter.NewStack(notifierCfg, log, func(req sipstack.Request) (sipadapter.Router, error) {
		n, err := eventsub.NewNotifier(
			notifierStack.Registry(),
			notifierStack.DialogFactory(),
			timers,
			req,
			eventsub.NotifierParams{ContentType: "application/weather+text", MaxExpires: 3600},
			eventsub.NotifierListeners{
				OnTerminated: func(t eventsub.NotifierTermination) {
					log.Info("notifier terminated", "code", t.Code)
				},
			},
			log,
		)
		if err != nil {
			return nil, err
		}
		if err := n.Start([]byte("sunny, 21C"), "application/weather+text"); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		log.Error("failed to start notifier stack", "error", err)
		os.Exit(1)
	}
	defer notifierStack.Close()

	subscriberStack, err := sipadapter.NewStack(subscriberCfg, log, nil)
	if err != nil {
		log.Error("failed to start subscriber stack", "error", err)
		os.Exit(1)
	}
	defer subscriberStack.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifierStack.ListenAndServe(ctx)
	go subscriberStack.ListenAndServe(ctx)

	done := make(chan struct{})
	sub, err := eventsub.NewSubscriber(
		subscriberStack.Registry(),
		subscriberStack.Transactions(),
		subscriberStack.DialogFactory(),
		timers,
		eventsub.SubscriberParams{
			Target:       "sip:weatherstation@127.0.0.1:5070",
			EventPackage: "weather",
			Accept:       []string{"application/weather+text"},
			Contact:      subscriberCfg.ContactURI(),
			Expires:      3600,
		},
		eventsub.SubscriberListeners{
			OnDialogCreated: func() { log.Info("dialog established") },
			OnActive:        func() { log.Info("subscription active") },
			OnNotify: func(isFinal bool, _ sipstack.Request, body []byte, _ string) {
				log.Info("received NOTIFY", "final", isFinal, "body", string(body))
			},
			OnTerminated: func(t eventsub.SubscriberTermination) {
				log.Info("subscriber terminated", "code", t.Code)
				close(done)
			},
		},
		log,
	)
	if err != nil {
		log.Error("failed to build subscriber", "error", err)
		os.Exit(1)
	}

	if err := sub.Subscribe(nil); err != nil {
		log.Error("subscribe failed", "error", err)
		os.Exit(1)
	}

	select {
	case <-time.After(5 * time.Second):
		_ = sub.Unsubscribe(nil)
	case <-done:
	}
	<-done
}
