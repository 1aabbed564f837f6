package emit

import (
	"golang.org/x/time/rate"

	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/bridge"
	"github.com/tarunspandit/imersa/internal/color"
	"github.com/tarunspandit/imersa/internal/framediff"
)

// yeelightFrame is one bulb's per-frame accumulator: the gate decision and
// the values to send when the decision is not a no-op.
type yeelightFrame struct {
	op  framediff.Decision
	rgb color.RGB
	bri uint8
}

func (e *Engine) collectYeelight(u Update) {
	cfg, err := bridge.YeelightCfgOf(u.Light)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping yeelight light")
		return
	}

	st := u.Light.State()
	op := e.cfg.Gate.Check(u.Light.IDV1, st.XY[0], st.XY[1], st.Bri)
	if op == framediff.Noop {
		return
	}
	e.yee[cfg.IP] = &yeelightFrame{op: op, rgb: u.Sample.RGB, bri: st.Bri}
}

func (e *Engine) yeelightTasks() []Task {
	var tasks []Task
	for ip, acc := range e.yee {
		ip, acc := ip, acc
		tasks = append(tasks, Task{
			Label: "yeelight:" + ip,
			Run:   func() error { return e.sendYeelight(ip, acc) },
		})
	}
	return tasks
}

func (e *Engine) sendYeelight(ip string, acc *yeelightFrame) error {
	limiter, ok := e.yeeLimiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(e.cfg.YeelightMaxFPS), 1)
		e.yeeLimiters[ip] = limiter
	}
	if !limiter.Allow() {
		return nil
	}

	// The music handshake runs once per session; a bulb that fell back to
	// basic mode is not retried.
	if err := e.cfg.Yeelight.EnableMusic(ip); err != nil {
		return err
	}
	conn := e.cfg.Yeelight.Conn(ip)

	switch acc.op {
	case framediff.Bri:
		pct := int(float64(acc.bri) / 2.55)
		if pct < 1 {
			pct = 1
		}
		return conn.Command("set_bright", pct, "smooth", e.cfg.YeelightSmoothMs)
	case framediff.Color:
		value := int(acc.rgb.R)*65536 + int(acc.rgb.G)*256 + int(acc.rgb.B)
		return conn.Command("set_rgb", value, "smooth", e.cfg.YeelightSmoothMs)
	}
	return nil
}
