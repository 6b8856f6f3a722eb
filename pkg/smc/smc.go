//go:build darwin

// Package smc reads battery and power adapter state from the Apple System
// Management Controller.
package smc

import (
	"github.com/charlie0129/gosmc"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// conn is the part of gosmc.Connection needed to read keys.
type conn interface {
	Open() error
	Close() error
	Read(key string) (gosmc.SMCVal, error)
}

// AppleSMC reads power keys from the SMC. It never writes.
type AppleSMC struct {
	conn conn
}

// New returns an AppleSMC talking to the machine's SMC.
func New() *AppleSMC {
	return &AppleSMC{conn: gosmc.New()}
}

// NewMock returns an AppleSMC backed by an in-memory key store.
func NewMock(keys map[string][]byte) *AppleSMC {
	c := gosmc.NewMockConnection()
	for k, v := range keys {
		if err := c.Write(k, v); err != nil {
			panic(err)
		}
	}
	return &AppleSMC{conn: c}
}

func (c *AppleSMC) Open() error  { return c.conn.Open() }
func (c *AppleSMC) Close() error { return c.conn.Close() }

// readByte reads a single-byte key.
func (c *AppleSMC) readByte(key string) (byte, error) {
	v, err := c.conn.Read(key)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "read %s", key)
	}
	logrus.WithFields(logrus.Fields{
		"key":   key,
		"bytes": v.Bytes,
	}).Trace("read from SMC")

	if len(v.Bytes) != 1 {
		return 0, pkgerrors.Errorf("key %s: incorrect data length %d!=1", key, len(v.Bytes))
	}
	return v.Bytes[0], nil
}
