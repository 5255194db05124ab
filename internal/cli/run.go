package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chase3718/opl3relay/internal/config"
	"github.com/chase3718/opl3relay/internal/midiin"
	"github.com/chase3718/opl3relay/internal/opl"
	"github.com/chase3718/opl3relay/internal/relay"
	"github.com/chase3718/opl3relay/internal/serialport"
)

const statsInterval = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start relaying until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		r := newRelay(c, logger)
		if err := r.Start(); err != nil {
			return err
		}
		defer r.Stop()

		sig := untilQuit(r, statsInterval)
		logger.Info("relay: signal received, stopping", "signal", sig.String())
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringP("serial", "s", "", "serial port of the board (default: auto-detect)")
	f.StringP("midi", "m", "", "MIDI input index or name (default: virtual port)")
	f.IntP("bank", "b", 0, "embedded bank number, see 'opl3relay banks'")
	f.String("volume-model", "generic", "volume model: generic or linear")
	f.Duration("period", relay.DefaultPeriod, "flush period")

	for key, name := range map[string]string{
		"serial.port":         "serial",
		"midi.port":           "midi",
		"engine.bank":         "bank",
		"engine.volume_model": "volume-model",
		"relay.period":        "period",
	} {
		if err := config.BindFlag(key, f.Lookup(name)); err != nil {
			slog.Error("cli: flag not bound", "flag", name, "err", err)
		}
	}
}

// newRelay wires the serial port, the MIDI input and the OPL3 engine into a
// relay. Nothing is opened until Start.
func newRelay(c config.Config, logger *slog.Logger) *relay.Relay {
	eng := opl.New(opl.Options{
		SampleRate:  c.Engine.SampleRate,
		Bank:        c.Engine.Bank,
		VolumeModel: opl.VolumeModel(c.Engine.VolumeModel),
		SoftPan:     c.Engine.SoftPan,
		Logger:      logger,
	})

	return relay.New(relay.Options{
		Protocol:    c.Protocol(),
		Period:      c.Relay.Period,
		StepSamples: c.Relay.StepSamples,
		MaxPending:  c.Serial.MaxPending,
		Engine:      eng,
		Logger:      logger,

		OpenTransport: func() (relay.Transport, error) {
			port, err := resolveSerial(c.Serial.Port)
			if err != nil {
				return nil, err
			}
			p, err := serialport.Open(serialport.Config{Port: port, Baud: c.Serial.Baud}, logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		OpenInput: func() (relay.Input, error) {
			in, err := midiin.Open(midiin.Config{Port: c.MIDI.Port, VirtualName: c.MIDI.VirtualName}, logger)
			if err != nil {
				return nil, err
			}
			return in, nil
		},
	})
}

func resolveSerial(port string) (string, error) {
	if port != "" {
		return port, nil
	}
	ports, err := serialport.List()
	if err != nil {
		return "", err
	}
	name, ok := serialport.Guess(ports)
	if !ok {
		return "", fmt.Errorf("%w: pass --serial, see 'opl3relay ports'", serialport.ErrNoPort)
	}
	logger.Info("serial: auto-selected port", "device", name)
	return name, nil
}

// -------------------- Signals --------------------

// sigChanFunc makes the channel untilQuit waits on.
var sigChanFunc = func() chan os.Signal {
	return make(chan os.Signal, 1)
}

// untilQuit blocks until SIGINT, SIGTERM or SIGQUIT, logging relay stats
// every interval meanwhile.
func untilQuit(r *relay.Relay, interval time.Duration) os.Signal {
	ch := sigChanFunc()
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(ch)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-ch:
			return sig
		case <-ticker.C:
			st := r.Stats()
			logger.Debug("relay: stats",
				"cycles", st.Cycles,
				"writes", st.Writes,
				"inputs", st.Inputs,
				"dropped_inputs", st.Dropped,
				"frames_dropped", st.FramesDropped,
				"send_errors", st.SendErrors,
			)
		}
	}
}
