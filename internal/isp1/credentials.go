// Package isp1 implements the SLE Initial Security Procedure (ISP1)
// credentials: time-windowed, hash-protected authentication material
// exchanged on bind and other operations (CCSDS 913.1-B-2, 3.1.2).
package isp1

import (
	"bytes"
	"encoding/asn1"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"sle-engine/internal/cds"
)

// VisibleString universal tag, not named by encoding/asn1.
const tagVisibleString = 26

// isp1Credentials is the wire structure carried inside the used alternative
// of the Credentials CHOICE:
//
//	ISP1Credentials ::= SEQUENCE
//	{ time         OCTET STRING (SIZE(8))
//	, randomNumber INTEGER (0 .. 2147483647)
//	, theProtected OCTET STRING (SIZE(20|32))
//	}
type isp1Credentials struct {
	Time         []byte
	RandomNumber int64
	TheProtected []byte
}

// hashInput is the canonical structure whose DER encoding is digested to
// produce theProtected:
//
//	HashInput ::= SEQUENCE
//	{ time         OCTET STRING (SIZE(8))
//	, randomNumber INTEGER (0 .. 2147483647)
//	, userName     VisibleString
//	, passWord     OCTET STRING
//	}
//
// Field order and presence are a protocol contract; both sides must produce
// byte-identical encodings for the same inputs.
type hashInput struct {
	Time         []byte
	RandomNumber int64
	UserName     asn1.RawValue
	PassWord     []byte
}

// Credentials is the authentication material attached to an SLE operation:
// either the unused marker or an encoded ISP1Credentials value.
type Credentials struct {
	used    bool
	encoded []byte
}

// Unused returns the empty credentials marker.
func Unused() Credentials {
	return Credentials{}
}

// Used reports whether the credentials carry ISP1 material.
func (c Credentials) Used() bool {
	return c.used
}

// Bytes returns the DER-encoded ISP1Credentials payload, or nil for the
// unused marker.
func (c Credentials) Bytes() []byte {
	return c.encoded
}

// Build constructs the credentials for an outgoing operation. When fill is
// false it returns the unused marker without consuming time or randomness.
// Otherwise it captures the current time at millisecond resolution, draws a
// fresh 31-bit nonce, and protects (time, nonce, username, password) with
// the given hash. Each call produces fresh material; credentials are never
// reused across operations.
func Build(fill bool, username string, password []byte, algo HashAlgorithm) (Credentials, error) {
	if !fill {
		return Unused(), nil
	}

	// Current time as per CCSDS 913.1-B-2, 3.1.2.1.1. Sub-millisecond
	// resolution is not used.
	nowMillis := time.Now().UnixMilli()
	nonce := int64(rand.Int31())

	timeBytes, err := cds.EncodeMilli(nowMillis, 0)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to encode credentials time: %w", err)
	}

	protected, err := computeProtected(timeBytes, nonce, username, password, algo)
	if err != nil {
		return Credentials{}, err
	}

	encoded, err := asn1.Marshal(isp1Credentials{
		Time:         timeBytes,
		RandomNumber: nonce,
		TheProtected: protected,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to encode ISP1 credentials: %w", err)
	}

	return Credentials{used: true, encoded: encoded}, nil
}

// Verify authenticates received credentials against the known identity of
// the remote peer (CCSDS 913.1-B-2, 3.1.2.2.2-4). It fails closed: decode
// errors, malformed or stale timestamps and digest mismatches all yield
// false, never an error escape, because the input is untrusted peer data.
func Verify(peerID string, password []byte, algo HashAlgorithm, encoded []byte, authDelaySeconds int) bool {
	var received isp1Credentials
	if _, err := asn1.Unmarshal(encoded, &received); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"peer":        peerID,
			"credentials": fmt.Sprintf("% X", encoded),
		}).Warn("Cannot decode credentials from remote peer")
		return false
	}

	embeddedMillis, embeddedMicros, err := cds.DecodeMilli(received.Time)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"peer":     peerID,
			"cds_time": fmt.Sprintf("% X", received.Time),
		}).Warn("Cannot read time from credentials of remote peer")
		return false
	}

	now := time.Now().UnixMilli()
	if now-embeddedMillis > int64(authDelaySeconds)*1000 {
		log.WithFields(log.Fields{
			"peer":                peerID,
			"now":                 now,
			"credentials_time":    embeddedMillis,
			"acceptable_delay_ms": int64(authDelaySeconds) * 1000,
		}).Warn("Cannot verify credentials of remote peer, acceptable delay exceeded")
		return false
	}

	timeBytes, err := cds.EncodeMilli(embeddedMillis, embeddedMicros)
	if err != nil {
		return false
	}
	expected, err := computeProtected(timeBytes, received.RandomNumber, peerID, password, algo)
	if err != nil {
		return false
	}

	// Plain byte comparison per CCSDS 913.1-B-2.
	return bytes.Equal(expected, received.TheProtected)
}

// computeProtected digests the DER encoding of the canonical HashInput
// structure with the given algorithm.
func computeProtected(timeBytes []byte, nonce int64, username string, password []byte, algo HashAlgorithm) ([]byte, error) {
	der, err := asn1.Marshal(hashInput{
		Time:         timeBytes,
		RandomNumber: nonce,
		UserName:     asn1.RawValue{Class: asn1.ClassUniversal, Tag: tagVisibleString, Bytes: []byte(username)},
		PassWord:     password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode hash input: %w", err)
	}
	digest := algo.New()
	digest.Write(der)
	return digest.Sum(nil), nil
}
