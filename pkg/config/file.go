package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		SkipHAL:               ptr.To(false),
		PollIntervalSeconds:   ptr.To(1),
		ACPollIntervalSeconds: ptr.To(10),
		AllowNonRootAccess:    ptr.To(false),
		Metrics:               ptr.To(true),
		// Publishing is off unless an address is given.
		RedisAddr: ptr.To(""),
		RedisKey:  ptr.To("battstat"),
		// Same for MQTT.
		MQTTBroker: ptr.To(""),
		MQTTTopic:  ptr.To("battstat"),
	}
)

var _ Config = &File{}

// File is a Config backed by a JSON file. Unset fields fall back to
// defaults and are not written back.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	SkipHAL               *bool   `json:"skipHAL,omitempty"`
	PollIntervalSeconds   *int    `json:"pollIntervalSeconds,omitempty"`
	ACPollIntervalSeconds *int    `json:"acPollIntervalSeconds,omitempty"`
	AllowNonRootAccess    *bool   `json:"allowNonRootAccess,omitempty"`
	Metrics               *bool   `json:"metrics,omitempty"`
	RedisAddr             *string `json:"redisAddr,omitempty"`
	RedisKey              *string `json:"redisKey,omitempty"`
	// MQTTBroker is a broker URL such as tcp://localhost:1883.
	MQTTBroker *string `json:"mqttBroker,omitempty"`
	MQTTTopic  *string `json:"mqttTopic,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		SkipHAL:               ptr.To(c.SkipHAL()),
		PollIntervalSeconds:   ptr.To(int(c.PollInterval() / time.Second)),
		ACPollIntervalSeconds: ptr.To(int(c.ACPollInterval() / time.Second)),
		AllowNonRootAccess:    ptr.To(c.AllowNonRootAccess()),
		Metrics:               ptr.To(c.Metrics()),
		RedisAddr:             ptr.To(c.RedisAddr()),
		RedisKey:              ptr.To(c.RedisKey()),
		MQTTBroker:            ptr.To(c.MQTTBroker()),
		MQTTTopic:             ptr.To(c.MQTTTopic()),
	}

	return rawConfig, nil
}

// get reads one field under the read lock, falling back to its default.
func get[T any](f *File, field func(c *RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(field(f.c), *field(defaultFileConfig))
}

func set[T any](f *File, field func(c *RawFileConfig) **T, v T) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	*field(f.c) = &v
}

func (f *File) SkipHAL() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.SkipHAL })
}

// PollInterval is how often the status is read while on battery, or at
// any time for backends without events.
func (f *File) PollInterval() time.Duration {
	s := get(f, func(c *RawFileConfig) *int { return c.PollIntervalSeconds })
	if s < 1 {
		s = *defaultFileConfig.PollIntervalSeconds
	}
	return time.Duration(s) * time.Second
}

// ACPollInterval is the relaxed polling interval used on AC power. It is
// never shorter than PollInterval.
func (f *File) ACPollInterval() time.Duration {
	s := get(f, func(c *RawFileConfig) *int { return c.ACPollIntervalSeconds })
	d := time.Duration(s) * time.Second
	if poll := f.PollInterval(); d < poll {
		d = poll
	}
	return d
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) Metrics() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.Metrics })
}

func (f *File) RedisAddr() string {
	return get(f, func(c *RawFileConfig) *string { return c.RedisAddr })
}

func (f *File) RedisKey() string {
	return get(f, func(c *RawFileConfig) *string { return c.RedisKey })
}

func (f *File) MQTTBroker() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTBroker })
}

// MQTTTopic is the prefix of every topic the status is published under.
func (f *File) MQTTTopic() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTTopic })
}

func (f *File) SetSkipHAL(b bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.SkipHAL }, b)
}

func (f *File) SetPollInterval(d time.Duration) {
	if d < time.Second {
		panic("poll interval must be at least one second")
	}
	set(f, func(c *RawFileConfig) **int { return &c.PollIntervalSeconds }, int(d/time.Second))
}

func (f *File) SetACPollInterval(d time.Duration) {
	if d < time.Second {
		panic("AC poll interval must be at least one second")
	}
	set(f, func(c *RawFileConfig) **int { return &c.ACPollIntervalSeconds }, int(d/time.Second))
}

func (f *File) SetAllowNonRootAccess(b bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.AllowNonRootAccess }, b)
}

func (f *File) SetMetrics(b bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.Metrics }, b)
}

func (f *File) SetRedisAddr(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.RedisAddr }, s)
}

func (f *File) SetRedisKey(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.RedisKey }, s)
}

func (f *File) SetMQTTBroker(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.MQTTBroker }, s)
}

func (f *File) SetMQTTTopic(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.MQTTTopic }, s)
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file means all defaults. Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// json.Decoder cannot tell an empty file from a broken one.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

// Path returns the file the config is loaded from.
func (f *File) Path() string {
	return f.filepath
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"skipHAL":            f.SkipHAL(),
		"pollInterval":       f.PollInterval(),
		"acPollInterval":     f.ACPollInterval(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"metrics":            f.Metrics(),
		"redisAddr":          f.RedisAddr(),
		"redisKey":           f.RedisKey(),
		"mqttBroker":         f.MQTTBroker(),
		"mqttTopic":          f.MQTTTopic(),
	}
}
