package kodi

import (
	"encoding/json"

	"chronicle-scrobbler/internal/logging"
	"chronicle-scrobbler/internal/scrobble"
)

// SignalRouter translates Kodi player notifications into the engine's
// lifecycle signals.
//
//	Player.OnAVStart / Player.OnPlay  -> OnStart
//	Player.OnPause                    -> OnPause
//	Player.OnResume                   -> OnResume
//	Player.OnSeek                     -> OnSeek
//	Player.OnStop {end:false}         -> OnStop
//	Player.OnStop {end:true}          -> OnEnd
//
// OnAVStart fires once audio/video is actually rolling (after buffering) and
// carries populated metadata; OnPlay is kept as a fallback for audio items
// where OnAVStart may not arrive.
type SignalRouter struct {
	signals scrobble.Signals
	log     logging.Logger
}

func NewSignalRouter(signals scrobble.Signals) *SignalRouter {
	return &SignalRouter{
		signals: signals,
		log:     logging.Default().With("component", "kodi-signals"),
	}
}

type onStopData struct {
	Data struct {
		End bool `json:"end"`
	} `json:"data"`
}

// Handle is the client's NotificationHandler. Notifications arrive on the
// websocket read goroutine; the engine serializes internally, so dispatching
// inline is safe.
func (r *SignalRouter) Handle(method string, params json.RawMessage) {
	switch method {
	case "Player.OnAVStart", "Player.OnPlay":
		r.log.Debug("notification", "method", method)
		r.signals.OnStart()
	case "Player.OnPause":
		r.signals.OnPause()
	case "Player.OnResume":
		r.signals.OnResume()
	case "Player.OnSeek":
		r.signals.OnSeek()
	case "Player.OnStop":
		var data onStopData
		if err := json.Unmarshal(params, &data); err != nil {
			r.log.Warn("bad OnStop payload", "err", err)
			r.signals.OnStop()
			return
		}
		if data.Data.End {
			r.signals.OnEnd()
		} else {
			r.signals.OnStop()
		}
	case "System.OnQuit":
		r.signals.OnStop()
	}
}

// HandleDisconnect is the client's DisconnectHandler. Once the host link is
// gone the playback state is unknowable, so the session is torn down the
// same way a host-reported playback error would tear it down.
func (r *SignalRouter) HandleDisconnect() {
	r.signals.OnError()
}
