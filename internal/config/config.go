// Configuration
//
// Example TOML:
//
//	[serial]
//	port = "/dev/ttyACM0"
//
//	[midi]
//	port = "Launchkey"
//
//	[engine]
//	bank = 0
//	volume_model = "generic"
//
//	[log]
//	level = "debug"
//
// Environment Variables:
// OPL3RELAY_SERIAL_PORT = "/dev/ttyACM0"
// OPL3RELAY_LOG_LEVEL = "debug"
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chase3718/opl3relay/internal/retrowave"
)

var ErrProtocol = errors.New("config: invalid protocol constants")

// Configuration defaults
func init() {
	setup(viper.GetViper())
}

func setup(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetConfigType("toml")
	v.SetConfigName("config")
	v.AddConfigPath("/etc/opl3relay")
	v.AddConfigPath("$HOME/.config/opl3relay")
	v.SetEnvPrefix("OPL3RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.max_pending", 64<<10)

	v.SetDefault("midi.port", "")
	v.SetDefault("midi.virtual_name", "OPL3 Relay MIDI")

	v.SetDefault("relay.period", time.Millisecond)
	v.SetDefault("relay.step_samples", 2)

	v.SetDefault("engine.sample_rate", 1000)
	v.SetDefault("engine.bank", 0)
	v.SetDefault("engine.volume_model", "generic")
	v.SetDefault("engine.soft_pan", true)

	p := retrowave.DefaultProtocol
	v.SetDefault("protocol.header", []int{int(p.Header[0]), int(p.Header[1])})
	v.SetDefault("protocol.addr_latch", []int{int(p.AddrLatch[0]), int(p.AddrLatch[1])})
	v.SetDefault("protocol.data_latch", []int{int(p.DataLatch[0]), int(p.DataLatch[1])})
	v.SetDefault("protocol.strobe", int(p.Strobe))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a fresh viper instance with the defaults applied.
func New() *viper.Viper {
	v := viper.New()
	setup(v)
	return v
}

// Read loads the config file at path, or searches the default locations
// when path is empty. A missing file in the default locations is not an
// error.
func Read(path string) error {
	return read(viper.GetViper(), path)
}

func read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read: %w", err)
	}
	return nil
}

// BindFlag binds a cli flag to a config key.
func BindFlag(key string, flag *pflag.Flag) error {
	return bindFlag(viper.GetViper(), key, flag)
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) error {
	if err := v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("config: bind %s: %w", key, err)
	}
	return nil
}

// -------------------- Typed view --------------------

type Serial struct {
	Port       string
	Baud       int
	MaxPending int
}

type MIDI struct {
	Port        string
	VirtualName string
}

type Relay struct {
	Period      time.Duration
	StepSamples int
}

type Engine struct {
	SampleRate  int
	Bank        int
	VolumeModel string
	SoftPan     bool
}

type Log struct {
	Level  string
	Format string
}

type Config struct {
	Serial Serial
	MIDI   MIDI
	Relay  Relay
	Engine Engine
	Log    Log

	protocol retrowave.Protocol
}

// Protocol returns the bus constants to frame writes with.
func (c Config) Protocol() retrowave.Protocol { return c.protocol }

// Load reads the global configuration.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (Config, error) {
	c := Config{
		Serial: Serial{
			Port:       v.GetString("serial.port"),
			Baud:       v.GetInt("serial.baud"),
			MaxPending: v.GetInt("serial.max_pending"),
		},
		MIDI: MIDI{
			Port:        v.GetString("midi.port"),
			VirtualName: v.GetString("midi.virtual_name"),
		},
		Relay: Relay{
			Period:      v.GetDuration("relay.period"),
			StepSamples: v.GetInt("relay.step_samples"),
		},
		Engine: Engine{
			SampleRate:  v.GetInt("engine.sample_rate"),
			Bank:        v.GetInt("engine.bank"),
			VolumeModel: v.GetString("engine.volume_model"),
			SoftPan:     v.GetBool("engine.soft_pan"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if c.Relay.Period <= 0 {
		return Config{}, fmt.Errorf("config: relay.period must be positive, got %s", c.Relay.Period)
	}

	p, err := protocolFrom(v)
	if err != nil {
		return Config{}, err
	}
	c.protocol = p
	return c, nil
}

func protocolFrom(v *viper.Viper) (retrowave.Protocol, error) {
	var p retrowave.Protocol
	pairs := []struct {
		key string
		dst *[2]byte
	}{
		{"protocol.header", &p.Header},
		{"protocol.addr_latch", &p.AddrLatch},
		{"protocol.data_latch", &p.DataLatch},
	}
	for _, pr := range pairs {
		vals := v.GetIntSlice(pr.key)
		if len(vals) != 2 {
			return p, fmt.Errorf("%w: %s needs 2 bytes, got %d", ErrProtocol, pr.key, len(vals))
		}
		for i, x := range vals {
			b, err := toByte(pr.key, x)
			if err != nil {
				return p, err
			}
			pr.dst[i] = b
		}
	}
	s, err := toByte("protocol.strobe", v.GetInt("protocol.strobe"))
	if err != nil {
		return p, err
	}
	p.Strobe = s
	return p, nil
}

func toByte(key string, x int) (byte, error) {
	if x < 0 || x > 0xff {
		return 0, fmt.Errorf("%w: %s value %d out of byte range", ErrProtocol, key, x)
	}
	return byte(x), nil
}
