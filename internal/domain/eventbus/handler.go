package eventbus

import (
	"voicerelay-server-go/internal/platform/logging"
)

// Monitor logs bus traffic. The bootstrap installs it so operators can
// follow the reset/detection flow from the console.
type Monitor struct {
	logger *logging.Logger
}

// NewMonitor creates a bus monitor writing through the given logger.
func NewMonitor(logger *logging.Logger) *Monitor {
	return &Monitor{logger: logger}
}

// Attach subscribes the monitor to the observable topics. Pipeline
// components publish asynchronously; the trigger registry publishes its
// CRUD confirmations on the sync bus, so that topic is subscribed there.
func (m *Monitor) Attach(bus *Bus) error {
	async := map[string]interface{}{
		EventSessionStarted: func(data SessionEventData) {
			m.logger.InfoTag("BUS", "session started id=%s gen=%d", data.SessionID, data.Generation)
		},
		EventSessionStopped: func(data SessionEventData) {
			m.logger.InfoTag("BUS", "session stopped id=%s", data.SessionID)
		},
		EventSessionReset: func(data ResetEventData) {
			m.logger.InfoTag("BUS", "session reset reason=%s clear_sink=%v from=%s",
				data.Reason, data.ClearSink, data.SourceComponent)
		},
		EventListeningChanged: func(data ListeningEventData) {
			m.logger.InfoTag("BUS", "listening=%v", data.Listening)
		},
		EventTriggerFired: func(data TriggerFiredData) {
			m.logger.InfoTag("BUS", "trigger fired owner=%s score=%.2f", data.Owner, data.Score)
		},
		EventCommandCommitted: func(data CommandCommittedData) {
			m.logger.InfoTag("BUS", "command committed owner=%s len=%d", data.Owner, len(data.Command))
		},
		EventSourceError: func(data SourceErrorData) {
			m.logger.WarnTag("BUS", "source error session=%s: %s", data.SessionID, data.Message)
		},
	}

	for topic, fn := range async {
		if err := bus.SubscribeAsync(topic, fn); err != nil {
			return err
		}
	}
	return bus.Subscribe(EventTriggersUpdated, func(data TriggersUpdatedData) {
		m.logger.InfoTag("BUS", "trigger list updated count=%d", data.Count)
	})
}
